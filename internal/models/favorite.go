package models

import "time"

// Favorite is a user's bookmark of a listing. It is keyed by (UserID, ListingID).
type Favorite struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"userId"`
	ListingID string    `bson:"listing_id" json:"listingId"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// FavoriteID builds the document key for a (user, listing) pair.
func FavoriteID(userID, listingID string) string {
	return userID + ":" + listingID
}
