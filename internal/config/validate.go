package config

import "fmt"

var validSizes = map[string]bool{
	"original": true, "medium": true, "thumb": true,
	"adjusted": true, "alternative": true,
}

var validLivePhotoSizes = map[string]bool{"original": true, "medium": true, "thumb": true}

var validFileMatchPolicies = map[string]bool{
	"name_size_dedup_with_suffix": true, "name_id7": true,
}

var validAlignRaw = map[string]bool{"original": true, "alternative": true, "as_is": true}

var validDomains = map[string]bool{"com": true, "cn": true}

// ValidateAccount checks a resolved account's configuration for values the
// SyncDriver cannot act on, returning the first error found.
func ValidateAccount(a *ResolvedAccount) error {
	if a.Account.Username == "" {
		return fmt.Errorf("account %q: username must not be empty", a.Name)
	}

	if a.Account.Directory == "" {
		return fmt.Errorf("account %q: directory is required", a.Name)
	}

	for _, s := range a.Account.Sizes {
		if !validSizes[s] {
			return fmt.Errorf("account %q: invalid size %q", a.Name, s)
		}
	}

	if !validLivePhotoSizes[a.Account.LivePhotoSize] {
		return fmt.Errorf("account %q: invalid live_photo_size %q", a.Name, a.Account.LivePhotoSize)
	}

	if !validFileMatchPolicies[a.Account.FileMatchPolicy] {
		return fmt.Errorf("account %q: invalid file_match_policy %q", a.Name, a.Account.FileMatchPolicy)
	}

	if !validAlignRaw[a.Account.AlignRaw] {
		return fmt.Errorf("account %q: invalid align_raw %q", a.Name, a.Account.AlignRaw)
	}

	if !validDomains[a.Account.Domain] {
		return fmt.Errorf("account %q: invalid domain %q (expected com or cn)", a.Name, a.Account.Domain)
	}

	if a.Account.UntilFound < 0 {
		return fmt.Errorf("account %q: until_found must be >= 0", a.Name)
	}

	if a.Account.Recent < 0 {
		return fmt.Errorf("account %q: recent must be >= 0", a.Name)
	}

	return nil
}
