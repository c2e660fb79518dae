package recovery

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cartsync/backend/internal/domain/recovery"
	"github.com/cartsync/backend/internal/infrastructure/logger"
	"github.com/cartsync/backend/internal/infrastructure/telemetry"
)

const (
	// DefaultLowStockThreshold is the stock level below which admins are alerted
	DefaultLowStockThreshold = 4

	// DefaultFallbackImageURL is attached when no product image can be resolved
	DefaultFallbackImageURL = "https://cdn.shopify.com/s/files/1/0655/1352/1302/files/WhatsApp_Image_2025-05-21_at_21.13.58.jpg"

	noProductCode  = "No code available"
	defaultVariant = "Default Variant"
	adminUserName  = "Admin"
)

// Campaigns names the messaging campaign of each notification kind. An
// empty name disables that kind.
type Campaigns struct {
	Reminder          string
	OrderConfirmation string
	LowStock          string
	Fulfillment       string
}

// NotificationServiceConfig holds the dependencies of a NotificationService
type NotificationServiceConfig struct {
	Platform  recovery.OrderPlatform
	Notifier  recovery.Notifier
	Processed recovery.ProcessedSet
	Metrics   Metrics
	Logger    *zap.Logger

	Campaigns         Campaigns
	StoreURL          string
	AdminDestination  string
	LowStockThreshold int
	FallbackImageURL  string
	DefaultCountry    string
}

// NotificationService composes and delivers notification jobs. It is the
// handler of the notification dispatch queue.
type NotificationService struct {
	platform  recovery.OrderPlatform
	notifier  recovery.Notifier
	processed recovery.ProcessedSet
	metrics   Metrics
	logger    *zap.Logger

	campaigns      Campaigns
	storeURL       string
	adminDest      string
	threshold      int
	fallbackImage  string
	defaultCountry string
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(cfg NotificationServiceConfig) *NotificationService {
	s := &NotificationService{
		platform:       cfg.Platform,
		notifier:       cfg.Notifier,
		processed:      cfg.Processed,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		campaigns:      cfg.Campaigns,
		storeURL:       cfg.StoreURL,
		adminDest:      cfg.AdminDestination,
		threshold:      cfg.LowStockThreshold,
		fallbackImage:  cfg.FallbackImageURL,
		defaultCountry: cfg.DefaultCountry,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("notification")
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.threshold <= 0 {
		s.threshold = DefaultLowStockThreshold
	}
	if s.fallbackImage == "" {
		s.fallbackImage = DefaultFallbackImageURL
	}
	if s.defaultCountry == "" {
		s.defaultCountry = recovery.DefaultCountryCode
	}
	return s
}

// Handle delivers one notification job
func (s *NotificationService) Handle(ctx context.Context, job *recovery.NotificationJob) (err error) {
	if job == nil {
		return recovery.ErrUnknownNotification
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "notification", "handle",
		telemetry.WithAttribute(telemetry.SpanAttrJobID, job.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrKind, string(job.Kind)),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	ctx = logger.WithContext(ctx, s.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
	))

	switch job.Kind {
	case recovery.NotificationCheckoutReminder:
		return s.sendReminder(ctx, job.Checkout)
	case recovery.NotificationOrderConfirmation:
		return s.sendOrderConfirmation(ctx, job.Order)
	case recovery.NotificationLowStockAlert:
		return s.sendLowStockAlerts(ctx, job.Order)
	case recovery.NotificationFulfillment:
		return s.sendFulfillment(ctx, job.Fulfillment)
	default:
		return fmt.Errorf("%w: %q", recovery.ErrUnknownNotification, job.Kind)
	}
}

// send delivers msg and records the attempt
func (s *NotificationService) send(ctx context.Context, kind recovery.NotificationKind, msg *recovery.Message) error {
	err := s.notifier.Send(ctx, msg)
	s.metrics.RecordNotification(ctx, kind, err)
	if err != nil {
		return fmt.Errorf("send %s: %w", strings.ToLower(string(kind)), err)
	}
	logger.L(ctx).Info("Notification sent",
		zap.String("campaign", msg.Campaign),
		zap.String("destination", msg.Destination),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Checkout reminder
// ---------------------------------------------------------------------------

func (s *NotificationService) sendReminder(ctx context.Context, c *recovery.Checkout) error {
	if c == nil {
		return recovery.ErrCheckoutIncomplete
	}
	log := logger.L(ctx).With(zap.String("cart_token", c.CartToken))
	if !c.HasAnyContact() {
		log.Info("Skipping reminder for checkout without contact information")
		return nil
	}
	if s.campaigns.Reminder == "" {
		log.Debug("Reminder campaign not configured, skipping")
		return nil
	}

	destination := recovery.Destination(c.ContactPhone(), c.CountryOr(s.defaultCountry))
	if destination == "" {
		log.Info("Skipping reminder for checkout without phone")
		return nil
	}

	path := c.RecoveryPath()
	return s.send(ctx, recovery.NotificationCheckoutReminder, &recovery.Message{
		Campaign:       s.campaigns.Reminder,
		Destination:    destination,
		UserName:       c.FirstName(),
		Source:         "organic",
		TemplateParams: []string{c.FirstName(), c.TotalPrice.StringFixed(2), path},
		Media:          &recovery.Media{URL: s.reminderImage(ctx, c), Filename: "product.jpg"},
		ButtonURL:      path,
	})
}

// reminderImage returns the image of the first item's variant, else the
// product's first image, else the fallback
func (s *NotificationService) reminderImage(ctx context.Context, c *recovery.Checkout) string {
	if len(c.LineItems) == 0 {
		return s.fallbackImage
	}
	item := c.LineItems[0]

	var imageID int64
	if item.VariantID != 0 {
		variant, err := s.platform.GetVariant(ctx, item.VariantID)
		if err != nil {
			logger.L(ctx).Warn("Failed to fetch variant image", zap.Int64("variant_id", item.VariantID), zap.Error(err))
		} else {
			imageID = variant.ImageID
		}
	}

	images := s.productImages(ctx, item.ProductID)
	if len(images) == 0 {
		return s.fallbackImage
	}
	for _, img := range images {
		if imageID != 0 && img.ID == imageID {
			return stripQuery(img.Src)
		}
	}
	return stripQuery(images[0].Src)
}

// ---------------------------------------------------------------------------
// Order confirmation
// ---------------------------------------------------------------------------

func (s *NotificationService) sendOrderConfirmation(ctx context.Context, o *recovery.Order) error {
	if o == nil {
		return recovery.ErrIncompleteEvent
	}
	log := logger.L(ctx).With(zap.Int64("order_id", o.ID))
	if s.campaigns.OrderConfirmation == "" {
		log.Debug("Order confirmation campaign not configured, skipping")
		return nil
	}

	destination := recovery.Destination(o.ContactPhone(), o.CountryOr(s.defaultCountry))
	if destination == "" {
		return fmt.Errorf("order %d: %w", o.ID, recovery.ErrMissingContact)
	}

	status := o.StatusPath(s.storeURL)
	msg := &recovery.Message{
		Campaign:       s.campaigns.OrderConfirmation,
		Destination:    destination,
		UserName:       o.FirstName(),
		Source:         "organic",
		TemplateParams: []string{o.FirstName(), o.DisplayName(), "₹" + o.TotalPrice.StringFixed(2), status},
		Media:          &recovery.Media{URL: s.itemImage(ctx, o.LineItems), Filename: "order.jpg"},
		ButtonURL:      status,
	}
	if err := s.send(ctx, recovery.NotificationOrderConfirmation, msg); err != nil {
		return err
	}

	if err := s.processed.Add(ctx, recovery.ProcessedOrders, strconv.FormatInt(o.ID, 10)); err != nil {
		return fmt.Errorf("record processed order: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Low stock alert
// ---------------------------------------------------------------------------

// sendLowStockAlerts alerts the admin about every item of the order whose
// variant stock fell below the threshold. Items are checked independently.
func (s *NotificationService) sendLowStockAlerts(ctx context.Context, o *recovery.Order) error {
	if o == nil {
		return recovery.ErrIncompleteEvent
	}
	log := logger.L(ctx).With(zap.Int64("order_id", o.ID))
	if s.campaigns.LowStock == "" || s.adminDest == "" {
		log.Debug("Low stock alerts not configured, skipping")
		return nil
	}

	current, err := s.platform.GetOrder(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("fetch order %d: %w", o.ID, err)
	}

	var failed int
	for _, item := range current.LineItems {
		if err := s.checkStock(ctx, item); err != nil {
			failed++
			log.Warn("Low stock check failed",
				zap.Int64("product_id", item.ProductID),
				zap.Int64("variant_id", item.VariantID),
				zap.Error(err),
			)
		}
	}
	if failed > 0 {
		return fmt.Errorf("low stock check failed for %d of %d items", failed, len(current.LineItems))
	}
	return nil
}

func (s *NotificationService) checkStock(ctx context.Context, item recovery.LineItem) error {
	product, err := s.platform.GetProduct(ctx, item.ProductID)
	if err != nil {
		return err
	}
	variant, err := s.platform.GetVariant(ctx, item.VariantID)
	if err != nil {
		return err
	}
	if variant.InventoryQuantity >= s.threshold {
		return nil
	}

	option := variant.Option1
	if option == "" {
		option = defaultVariant
	}
	inventoryPath := "admin/products/" + strconv.FormatInt(item.ProductID, 10) + "?variant=" + strconv.FormatInt(item.VariantID, 10)

	return s.send(ctx, recovery.NotificationLowStockAlert, &recovery.Message{
		Campaign:    s.campaigns.LowStock,
		Destination: s.adminDest,
		UserName:    adminUserName,
		Source:      "low_stock",
		TemplateParams: []string{
			product.Title,
			ProductCode(product.BodyHTML),
			option,
			strconv.Itoa(variant.InventoryQuantity),
			strconv.Itoa(s.threshold),
			inventoryPath,
		},
		Media:     &recovery.Media{URL: s.itemImage(ctx, []recovery.LineItem{item}), Filename: "product.jpg"},
		ButtonURL: inventoryPath,
	})
}

// ProductCode extracts the product code kept in the paragraphs of a product
// description
func ProductCode(bodyHTML string) string {
	if strings.TrimSpace(bodyHTML) == "" {
		return noProductCode
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if err != nil {
		return noProductCode
	}
	code := strings.TrimSpace(doc.Find("p").Text())
	if code == "" {
		return noProductCode
	}
	return code
}

// ---------------------------------------------------------------------------
// Fulfillment
// ---------------------------------------------------------------------------

func (s *NotificationService) sendFulfillment(ctx context.Context, f *recovery.Fulfillment) error {
	if f == nil {
		return recovery.ErrIncompleteEvent
	}
	log := logger.L(ctx).With(zap.Int64("fulfillment_id", f.ID), zap.Int64("order_id", f.OrderID))
	if s.campaigns.Fulfillment == "" {
		log.Debug("Fulfillment campaign not configured, skipping")
		return nil
	}

	name, phone, country := "Customer", "", s.defaultCountry
	if d := f.Destination; d != nil {
		if d.FirstName != "" {
			name = d.FirstName
		}
		phone = d.Phone
		if d.CountryCode != "" {
			country = d.CountryCode
		}
	}
	destination := recovery.Destination(phone, country)
	if destination == "" {
		return fmt.Errorf("fulfillment %d: %w", f.ID, recovery.ErrMissingContact)
	}

	tracking := f.TrackingNumber
	if tracking == "" {
		tracking = "Unknown fulfillment"
	}
	msg := &recovery.Message{
		Campaign:       s.campaigns.Fulfillment,
		Destination:    destination,
		UserName:       name,
		Source:         "fulfillment",
		TemplateParams: []string{name, f.OrderDisplayName(), tracking, f.TrackingURL},
		Media:          &recovery.Media{URL: s.itemImage(ctx, f.LineItems), Filename: "product.jpg"},
		ButtonURL:      f.TrackingURL,
	}
	if err := s.send(ctx, recovery.NotificationFulfillment, msg); err != nil {
		return err
	}

	if err := s.processed.Add(ctx, recovery.ProcessedFulfillments, strconv.FormatInt(f.ID, 10)); err != nil {
		return fmt.Errorf("record processed fulfillment: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Images
// ---------------------------------------------------------------------------

// itemImage returns the image depicting the first item's variant, else the
// product's first image, else the fallback
func (s *NotificationService) itemImage(ctx context.Context, items []recovery.LineItem) string {
	if len(items) == 0 {
		return s.fallbackImage
	}
	item := items[0]

	images := s.productImages(ctx, item.ProductID)
	if len(images) == 0 {
		return s.fallbackImage
	}
	for _, img := range images {
		if slices.Contains(img.VariantIDs, item.VariantID) {
			return stripQuery(img.Src)
		}
	}
	return stripQuery(images[0].Src)
}

func (s *NotificationService) productImages(ctx context.Context, productID int64) []recovery.ProductImage {
	if productID == 0 {
		return nil
	}
	images, err := s.platform.ListProductImages(ctx, productID)
	if err != nil {
		logger.L(ctx).Warn("Failed to fetch product images", zap.Int64("product_id", productID), zap.Error(err))
		return nil
	}
	return images
}

func stripQuery(src string) string {
	base, _, _ := strings.Cut(src, "?")
	return base
}
