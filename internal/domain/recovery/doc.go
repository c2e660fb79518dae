// Package recovery holds the domain model for checkout recovery and payment
// reconciliation.
//
// A storefront emits "checkout started" events while a payment gateway captures
// payments independently. The two streams share no foreign key: a payment is
// tied back to a checkout only by the customer's phone number and the amount,
// or by the cart token embedded in the payment's cancel URL note. This package
// defines:
//
//   - the checkout, order and payment shapes exchanged with collaborators
//   - the matching rules (SelectPayment, FindConvertedOrder, FindDuplicateByPhone,
//     FindDuplicateByEmail)
//   - contact normalization helpers used for matching and message delivery
//   - the ports implemented by infrastructure (OrderPlatform, PaymentGateway,
//     Notifier and the ledger stores)
//
// Nothing in this package performs I/O.
package recovery
