// Package campaign holds the ad campaign types a brief can be framed with.
package campaign

import "strings"

// 캠페인 타입
const (
	ProductLaunch = "product-launch"
	BrandStory    = "brand-story"
	Testimonial   = "testimonial"
)

// Types lists the known campaign types in display order.
var Types = []string{ProductLaunch, BrandStory, Testimonial}

var contexts = map[string]string{
	ProductLaunch: "This is a Product Launch ad campaign. Focus on revealing and showcasing the product: unboxing energy, feature highlights, premium materials, the moment of first impression.",
	BrandStory:    "This is a Brand Story ad campaign. Focus on origin narrative, craftsmanship, company identity, the people and process behind the brand, emotional connection.",
	Testimonial:   "This is a Testimonial ad campaign. Focus on real human reactions, social proof, customer satisfaction, authentic emotion, trust-building moments.",
}

var labels = map[string]string{
	ProductLaunch: "Product Launch",
	BrandStory:    "Brand Story",
	Testimonial:   "Testimonial",
}

// Normalize lowercases and trims t. Unknown types are returned unchanged so
// callers can still record what the user asked for.
func Normalize(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// Known reports whether t is one of Types.
func Known(t string) bool {
	_, ok := contexts[Normalize(t)]
	return ok
}

// Context returns the creative framing for t, or "" for unknown types.
func Context(t string) string {
	return contexts[Normalize(t)]
}

// Label returns the human readable name of t. Unknown types are "General".
func Label(t string) string {
	if l, ok := labels[Normalize(t)]; ok {
		return l
	}
	return "General"
}
