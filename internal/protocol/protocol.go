// Package protocol holds the wire-visible constants and codecs shared by the
// publisher and subscriber: parameter names, link relation tokens, the
// timestamp format, the link-header parser/builder, the query-string
// decoder, and relative-to-absolute URL resolution.
package protocol

const (
	// ParamTs names the query parameter carrying a feed element's timestamp.
	ParamTs = "p3sub-ts"
	// ParamSubID names the query parameter carrying a subscription id.
	ParamSubID = "p3sub-subid"
	// ParamCallback names the form field carrying a subscriber's callback URL.
	ParamCallback = "p3sub-callback"

	// RelCanonical marks the link to the exact element a GET resolved to.
	RelCanonical = "canonical"
	// RelNext marks the link to the element immediately after the current one.
	RelNext = "next"
	// RelPrev marks the link to the element immediately before the current one.
	RelPrev = "prev"
	// RelSubscribe marks the link to the subscribe endpoint.
	RelSubscribe = "p3sub-subscribe"
	// RelUnsubscribe marks the link to a subscription's unsubscribe endpoint.
	RelUnsubscribe = "p3sub-unsubscribe"

	// MinSubIDLength is the minimum accepted length of a subscription id.
	MinSubIDLength = 32

	// subIDAlphabet is the exact character set and order used to generate
	// subscription ids. The upper-case range intentionally excludes X, Y, Z.
	subIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVW" +
		"abcdefghijklmnopqrstuvwxyz" +
		"0123456789" +
		"_"

	// SubIDGeneratedLength is the length of a subscription id minted by
	// GenerateSubID. It comfortably exceeds MinSubIDLength.
	SubIDGeneratedLength = 38
)
