package model

import "time"

// Queue is a named waitlist belonging to a restaurant. A restaurant
// can run several queues at once (walk-in, reservation, bar, ...).
// Deleting a queue hard-deletes its entries first, then the queue row.
//
// Fields:
//  ID           – primary key identifier.
//  RestaurantID – owning restaurant.
//  Name         – queue name shown to customers.
//  IsActive     – whether new joins are accepted.
//  CreatedAt    – timestamp of creation.
type Queue struct {
	ID           uint64    `json:"id"`
	RestaurantID uint64    `json:"restaurantId"`
	Name         string    `json:"name"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}
