package eventstream

import (
	"net/url"
	"strconv"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// maxCloseReasonBytes is the largest close reason that fits a control frame next to the code.
const maxCloseReasonBytes = 123

// blockedPorts lists ports user agents refuse to connect to.
var blockedPorts = map[int]struct{}{
	0: {}, 1: {}, 7: {}, 9: {}, 11: {}, 13: {}, 15: {}, 17: {}, 19: {}, 20: {}, 21: {}, 22: {}, 23: {},
	25: {}, 37: {}, 42: {}, 43: {}, 53: {}, 69: {}, 77: {}, 79: {}, 87: {}, 95: {}, 101: {}, 102: {},
	103: {}, 104: {}, 109: {}, 110: {}, 111: {}, 113: {}, 115: {}, 117: {}, 119: {}, 123: {}, 135: {},
	137: {}, 139: {}, 143: {}, 161: {}, 179: {}, 389: {}, 427: {}, 465: {}, 512: {}, 513: {}, 514: {},
	515: {}, 526: {}, 530: {}, 531: {}, 532: {}, 540: {}, 548: {}, 554: {}, 556: {}, 563: {}, 587: {},
	601: {}, 636: {}, 989: {}, 990: {}, 993: {}, 995: {}, 1719: {}, 1720: {}, 1723: {}, 2049: {},
	3659: {}, 4045: {}, 5060: {}, 5061: {}, 6000: {}, 6566: {}, 6665: {}, 6666: {}, 6667: {}, 6668: {},
	6669: {}, 6697: {}, 10080: {},
}

// parseTarget validates a connection url the way a user agent does before any network activity.
// Malformed urls and unexpected schemes wrap ErrSyntax, forbidden ports wrap ErrSecurity.
func parseTarget(rawURL string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(ErrSyntax, err.Error())
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errors.Wrapf(ErrSyntax, "%q is not an absolute url", rawURL)
	}

	allowed := false
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, errors.Wrapf(ErrSyntax, "scheme %q is not one of %v", u.Scheme, schemes)
	}
	if u.Fragment != "" {
		return nil, errors.Wrapf(ErrSyntax, "%q has a fragment", rawURL)
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port > 65535 {
			return nil, errors.Wrapf(ErrSyntax, "invalid port %q", p)
		}
		if _, blocked := blockedPorts[port]; blocked {
			return nil, errors.Wrapf(ErrSecurity, "port %d is blocked", port)
		}
	}

	return u, nil
}

// validateCloseStatus applies the checks a user agent runs on close(code, reason).
func validateCloseStatus(code int, reason string) error {
	if code != 1000 && (code < 3000 || code > 4999) {
		return errors.Wrapf(ErrInvalidAccess, "close code %d must be 1000 or within 3000-4999", code)
	}
	if !utf8.ValidString(reason) {
		return errors.Wrap(ErrSyntax, "close reason is not valid utf-8")
	}
	if len(reason) > maxCloseReasonBytes {
		return errors.Wrapf(ErrSyntax, "close reason is %d bytes, limit is %d", len(reason), maxCloseReasonBytes)
	}
	return nil
}
