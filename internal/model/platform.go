package model

import "strings"

// Platform is a social network posts can be published to.
type Platform struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MaxPostLength int    `json:"max_post_length"`
}

// Platforms lists the networks with a known post length limit.
var Platforms = []Platform{
	{ID: "twitter", Name: "Twitter", MaxPostLength: 280},
	{ID: "linkedin", Name: "LinkedIn", MaxPostLength: 3000},
	{ID: "facebook", Name: "Facebook", MaxPostLength: 63206},
	{ID: "instagram", Name: "Instagram", MaxPostLength: 2200},
}

// LookupPlatform finds a platform by id, ignoring case.
func LookupPlatform(id string) (Platform, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range Platforms {
		if p.ID == id {
			return p, true
		}
	}
	return Platform{}, false
}
