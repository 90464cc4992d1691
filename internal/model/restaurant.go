package model

import "time"

// Restaurant represents a venue operated by exactly one owner. The
// owner_id column carries a unique index, so an owner can hold at most
// one restaurant. A restaurant may run any number of named queues.
//
// Fields:
//  ID              – primary key identifier.
//  OwnerID         – users.id of the operating owner (unique).
//  Name            – restaurant name shown to customers.
//  Address         – street address.
//  Type            – optional cuisine/venue type.
//  Description     – optional short blurb.
//  LongDescription – optional full description.
//  MenuText        – optional free-form menu text.
//  CreatedAt       – timestamp of creation.
//  UpdatedAt       – timestamp of last update.
type Restaurant struct {
	ID              uint64    `json:"id"`
	OwnerID         uint64    `json:"ownerId"`
	Name            string    `json:"name"`
	Address         string    `json:"address"`
	Type            *string   `json:"type,omitempty"`
	Description     *string   `json:"description,omitempty"`
	LongDescription *string   `json:"longDescription,omitempty"`
	MenuText        *string   `json:"menuText,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
