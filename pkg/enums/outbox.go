package enums

// OutboxStatus is the delivery state of an outbox event.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusPublished OutboxStatus = "PUBLISHED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateTransaction  OutboxAggregateType = "payment_transaction"
	OutboxAggregateSubscription OutboxAggregateType = "customer_subscription"
	OutboxAggregatePurchase     OutboxAggregateType = "purchase"
)

// OutboxEventType names the domain events delivered to tenant webhook
// endpoints.
type OutboxEventType string

const (
	OutboxEventTransactionPaid       OutboxEventType = "transaction.paid"
	OutboxEventTransactionRefunded   OutboxEventType = "transaction.refunded"
	OutboxEventTransactionFailed     OutboxEventType = "transaction.failed"
	OutboxEventTransactionCanceled   OutboxEventType = "transaction.canceled"
	OutboxEventSubscriptionActivated OutboxEventType = "subscription.activated"
	OutboxEventPurchaseCompleted     OutboxEventType = "purchase.completed"
)

// String implements fmt.Stringer.
func (s OutboxStatus) String() string { return string(s) }

// String implements fmt.Stringer.
func (t OutboxAggregateType) String() string { return string(t) }

// String implements fmt.Stringer.
func (t OutboxEventType) String() string { return string(t) }
