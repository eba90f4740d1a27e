package identity

import "strings"

// Key is the canonical identity of a device, used to correlate records of
// the same machine across inventory sources that disagree on naming.
type Key struct {
	// ShortName is the unqualified, upper-cased machine name (e.g. "SRV01").
	ShortName string `json:"short_name"`

	// Domain is the upper-cased NetBIOS-style domain label, if known.
	// Empty when the source only supplied a bare name.
	Domain string `json:"domain,omitempty"`
}

// Normalize derives a canonical Key from a raw device name.
//
// raw may be a bare name ("srv01"), a domain-qualified name ("CORP\srv01"),
// an FQDN ("srv01.corp.local") or a hypervisor display name with a suffix
// ("srv01_replica"). domain, when non-empty, takes priority over anything
// implied by the name itself. splitChar, when non-empty, truncates the name
// at its first occurrence before any other parsing (hypervisor suffixes).
//
// Normalize never fails: a name it cannot pick apart becomes the short name
// as-is.
func Normalize(raw, domain, splitChar string) Key {
	name := strings.TrimSpace(raw)
	if splitChar != "" {
		if idx := strings.Index(name, splitChar); idx >= 0 {
			name = name[:idx]
		}
	}

	implied := ""
	if idx := strings.Index(name, `\`); idx >= 0 {
		implied = name[:idx]
		name = name[idx+1:]
	} else if idx := strings.Index(name, "."); idx >= 0 {
		// FQDN: first label is the machine, the first label of the remainder
		// is the implied domain (srv01.corp.local -> SRV01 @ CORP).
		rest := name[idx+1:]
		name = name[:idx]
		if dot := strings.Index(rest, "."); dot >= 0 {
			rest = rest[:dot]
		}
		implied = rest
	}

	if domain == "" {
		domain = implied
	}

	return Key{
		ShortName: strings.ToUpper(name),
		Domain:    strings.ToUpper(strings.TrimSpace(domain)),
	}
}

// Equal reports whether two keys identify the same device. Short names must
// match; domains must match only when both sides carry one, so a bare
// "SRV01" still correlates with "CORP\SRV01".
func (k Key) Equal(other Key) bool {
	if k.ShortName != other.ShortName {
		return false
	}
	if k.Domain == "" || other.Domain == "" {
		return true
	}
	return k.Domain == other.Domain
}

// ConflictsWith reports whether two keys share a short name but disagree on
// domain. Such pairs must be treated as different machines during merging.
func (k Key) ConflictsWith(other Key) bool {
	return k.ShortName == other.ShortName &&
		k.Domain != "" && other.Domain != "" &&
		k.Domain != other.Domain
}

// String renders the key as DOMAIN\SHORT, or just SHORT when the domain is
// unknown.
func (k Key) String() string {
	if k.Domain == "" {
		return k.ShortName
	}
	return k.Domain + `\` + k.ShortName
}
