package handler

import (
	"errors"
	"net/netip"
	"reflect"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxUserAgentBytes = 512

var (
	validate   = newValidator()
	tagPattern = regexp.MustCompile(`<[^>]*>`)
)

// newValidator reports fields by their wire (json) names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest checks the validate tags of req and returns InvalidArgument naming the first bad field.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return status.Errorf(codes.InvalidArgument, "%s is invalid (%s)", fe.Field(), fe.Tag())
	}
	return status.Error(codes.InvalidArgument, "invalid request")
}

// sanitizeUserAgent strips markup and control characters and truncates to 512 bytes on a rune boundary.
func sanitizeUserAgent(ua string) string {
	ua = tagPattern.ReplaceAllString(ua, "")
	ua = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, ua)
	ua = strings.TrimSpace(ua)
	if len(ua) <= maxUserAgentBytes {
		return ua
	}
	cut := maxUserAgentBytes
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}

// normalizeIP returns the canonical form of ip, or "" if it does not parse.
func normalizeIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}
