package events

// TopicSaleSettled is published once per committed sale; notifiers key off it
// to schedule receipt delivery.
const TopicSaleSettled = "sale.settled"
