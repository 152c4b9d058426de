package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role defines the account privilege levels.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "sub-admin"
	RoleAgent    Role = "agent"
	RoleClient   Role = "client"
)

// Account represents a user of the marketplace and the join target embedded
// as "owner" in property query results.
type Account struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	Verified     bool               `bson:"verified" json:"verified"`
	AvatarURL    string             `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	AvatarNames  *ImageVariantSet   `bson:"avatarNames,omitempty" json:"-"`
	SignedInAt   *time.Time         `bson:"signedInAt,omitempty" json:"signedInAt,omitempty"`
	SignedOutAt  *time.Time         `bson:"signedOutAt,omitempty" json:"signedOutAt,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// AccountPublic is the owner shape exposed in property responses. The
// owner-join stage strips credentials before this is decoded.
type AccountPublic struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name      string             `bson:"name" json:"name"`
	Role      Role               `bson:"role" json:"role"`
	Verified  bool               `bson:"verified" json:"verified"`
	AvatarURL string             `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
}
