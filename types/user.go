package types

import "encoding/json"

// User represents a player account on the platform.
// Scores and UploadedContent are opaque to the server and are kept as
// raw JSON values keyed by score or content identifier.
type User struct {
	// RecordID is the server-assigned primary key. It never changes.
	RecordID string `json:"recordId"`

	// ExternalID is the identity from the third-party login provider
	// (e.g. a Steam id). It is the natural lookup key and is immutable.
	ExternalID string `json:"externalId"`

	DisplayName     string                     `json:"displayName"`
	Scores          map[string]json.RawMessage `json:"scores"`
	UploadedContent map[string]json.RawMessage `json:"uploadedContent"`

	// ProfileImageURL and BannerImageURL are empty when absent.
	ProfileImageURL string `json:"profileImageUrl"`
	BannerImageURL  string `json:"bannerImageUrl"`

	Bio     string `json:"bio"`
	Country string `json:"country"`

	// LastLogin is the last login time in epoch milliseconds.
	LastLogin int64 `json:"lastLogin"`

	IsSupporter bool `json:"isSupporter"`
}

// UserPatch carries a partial update. Nil fields are left untouched.
type UserPatch struct {
	DisplayName     *string                    `json:"displayName,omitempty"`
	Scores          map[string]json.RawMessage `json:"scores,omitempty"`
	UploadedContent map[string]json.RawMessage `json:"uploadedContent,omitempty"`
	ProfileImageURL *string                    `json:"profileImageUrl,omitempty"`
	BannerImageURL  *string                    `json:"bannerImageUrl,omitempty"`
	Bio             *string                    `json:"bio,omitempty"`
	Country         *string                    `json:"country,omitempty"`
	LastLogin       *int64                     `json:"lastLogin,omitempty"`
	IsSupporter     *bool                      `json:"isSupporter,omitempty"`
}

// Apply returns a copy of user with every provided patch field replaced.
func (p UserPatch) Apply(user User) User {
	if p.DisplayName != nil {
		user.DisplayName = *p.DisplayName
	}
	if p.Scores != nil {
		user.Scores = p.Scores
	}
	if p.UploadedContent != nil {
		user.UploadedContent = p.UploadedContent
	}
	if p.ProfileImageURL != nil {
		user.ProfileImageURL = *p.ProfileImageURL
	}
	if p.BannerImageURL != nil {
		user.BannerImageURL = *p.BannerImageURL
	}
	if p.Bio != nil {
		user.Bio = *p.Bio
	}
	if p.Country != nil {
		user.Country = *p.Country
	}
	if p.LastLogin != nil {
		user.LastLogin = *p.LastLogin
	}
	if p.IsSupporter != nil {
		user.IsSupporter = *p.IsSupporter
	}
	return user
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.DisplayName == nil &&
		p.Scores == nil &&
		p.UploadedContent == nil &&
		p.ProfileImageURL == nil &&
		p.BannerImageURL == nil &&
		p.Bio == nil &&
		p.Country == nil &&
		p.LastLogin == nil &&
		p.IsSupporter == nil
}
