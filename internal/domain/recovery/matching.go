package recovery

import "strings"

// FindConvertedOrder returns the order created from checkout c, identified by
// an equal cart token or by the order's checkout token equal to c.Token.
func FindConvertedOrder(c *Checkout, orders []Order) *Order {
	for i := range orders {
		o := &orders[i]
		if c.CartToken != "" && o.CartToken == c.CartToken {
			return o
		}
		if c.Token != "" && o.CheckoutToken == c.Token {
			return o
		}
	}
	return nil
}

// FindDuplicateByPhone returns an order for the same customer phone and the
// same total as c. Any of the order's phone fields matches when its digits
// contain the last ten digits of the checkout contact phone.
func FindDuplicateByPhone(c *Checkout, orders []Order) *Order {
	phone := Last10(c.ContactPhone())
	if phone == "" {
		return nil
	}

	for i := range orders {
		o := &orders[i]
		if !o.TotalPrice.Equal(c.TotalPrice) {
			continue
		}
		for _, p := range o.Phones() {
			if strings.Contains(Digits(p), phone) {
				return o
			}
		}
	}
	return nil
}

// FindDuplicateByEmail returns an order whose order or customer email equals
// the checkout email exactly and whose total equals the checkout total.
func FindDuplicateByEmail(c *Checkout, orders []Order) *Order {
	if c.Email == "" {
		return nil
	}

	for i := range orders {
		o := &orders[i]
		if !o.TotalPrice.Equal(c.TotalPrice) {
			continue
		}
		for _, e := range o.Emails() {
			if e == c.Email {
				return o
			}
		}
	}
	return nil
}
