package photos

import (
	"fmt"
	"strings"
	"time"

	"github.com/icloud-photos/icloudpd-go/internal/filenames"
)

// versionSlot names one size label and the field-name prefix its resource
// entries carry in a record.
type versionSlot struct {
	sizeLabel string
	prefix    string
}

// photoVersionLookup and videoVersionLookup enumerate the resource-prefix
// table for image and movie item types respectively.
var photoVersionLookup = []versionSlot{
	{sizeLabel: "original", prefix: "resOriginal"},
	{sizeLabel: "alternative", prefix: "resOriginalAlt"},
	{sizeLabel: "medium", prefix: "resJPEGMed"},
	{sizeLabel: "thumb", prefix: "resJPEGThumb"},
	{sizeLabel: "adjusted", prefix: "resJPEGFull"},
}

var videoVersionLookup = []versionSlot{
	{sizeLabel: "original", prefix: "resOriginalVidCompl"},
	{sizeLabel: "medium", prefix: "resVidMed"},
	{sizeLabel: "thumb", prefix: "resVidSmall"},
}

// Version is one downloadable rendition of an Asset.
type Version struct {
	SizeLabel   string
	DownloadURL string
	Size        int64
	FileType    string
	Filename    string
}

// Record is the raw server representation: a CPLMaster merged with its
// CPLAsset sibling, keyed by masterRef. Field names follow the wire
// protocol's CamelCase record-field convention.
type Record struct {
	RecordName      string
	RecordChangeTag string
	ItemType        string
	FilenameEnc     *filenames.EncodedFilename
	AssetDate       time.Time
	IsFavorite      bool
	Resources       map[string]ResourceField // "<prefix>Res", "<prefix>FileType"
}

// ResourceField is one `<prefix>Res.value` / `<prefix>FileType.value` pair
// read off a Record.
type ResourceField struct {
	DownloadURL string
	Size        int64
	FileType    string
}

// Asset is the client-facing photo/video entry PhotoService.Album.iterate
// yields.
type Asset struct {
	ID              string
	RecordChangeTag string
	ItemType        string
	CreatedAt       time.Time
	IsFavorite      bool

	filename string
	versions map[string]Version

	hasLivePhoto bool
}

// IsVideo reports whether this asset's primary item type is a movie.
func (a *Asset) IsVideo() bool {
	return a.ItemType == "com.apple.quicktime-movie" || a.ItemType == "public.mpeg-4"
}

// HasLivePhoto reports whether a paired live-photo movie version exists.
func (a *Asset) HasLivePhoto() bool { return a.hasLivePhoto }

// Filename returns the asset's computed filename (extract → clean, suffix
// applied later once the target size and collision state are known).
func (a *Asset) Filename() string { return a.filename }

// Version returns the requested size's Version, and whether it exists.
func (a *Asset) Version(sizeLabel string) (Version, bool) {
	v, ok := a.versions[sizeLabel]

	return v, ok
}

// Versions returns all known size labels for this asset, in lookup-table
// order (stable, so "original" is a predictable fallback target).
func (a *Asset) Versions() []string {
	lookup := photoVersionLookup
	if a.IsVideo() {
		lookup = videoVersionLookup
	}

	out := make([]string, 0, len(lookup))

	for _, slot := range lookup {
		if _, ok := a.versions[slot.sizeLabel]; ok {
			out = append(out, slot.sizeLabel)
		}
	}

	return out
}

// newAsset builds an Asset from a merged Record, computing its filename
// and version table.
func newAsset(rec Record, cleanPolicy func(string) string, matchPolicy filenames.FileMatchPolicy, rawAlignPolicy filenames.RawAlignPolicy) (*Asset, error) {
	rawName, err := filenames.Extract(rec.FilenameEnc, rec.RecordName, rec.ItemType)
	if err != nil {
		return nil, fmt.Errorf("photos: computing filename for %s: %w", rec.RecordName, err)
	}

	cleaned := filenames.Clean(rawName)
	if cleanPolicy != nil {
		cleaned = cleanPolicy(cleaned)
	}

	asset := &Asset{
		ID:              rec.RecordName,
		RecordChangeTag: rec.RecordChangeTag,
		ItemType:        rec.ItemType,
		CreatedAt:       rec.AssetDate,
		IsFavorite:      rec.IsFavorite,
		filename:        cleaned,
		versions:        make(map[string]Version),
	}

	lookup := photoVersionLookup
	if asset.IsVideo() {
		lookup = videoVersionLookup
	}

	for _, slot := range lookup {
		resKey := slot.prefix + "Res"
		typeKey := slot.prefix + "FileType"

		res, ok := rec.Resources[resKey]
		if !ok {
			continue
		}

		fileType := res.FileType
		if ft, ok := rec.Resources[typeKey]; ok && ft.FileType != "" {
			fileType = ft.FileType
		}

		versionFilename := cleaned

		// An image record whose version resource is itself a QuickTime
		// movie is the live-photo companion clip; rewrite its filename
		// per the live-photo rule and mark the asset as having one.
		if !asset.IsVideo() && fileType == "com.apple.quicktime-movie" {
			versionFilename = filenames.LivePhotoMovieName(cleaned)
			versionFilename = filenames.WithSizeSuffix(versionFilename, slot.sizeLabel)
			asset.hasLivePhoto = true
		} else {
			// Give this version its own type's extension rather than
			// inheriting the primary asset's, so e.g. a RAW alternative
			// doesn't collide with its JPEG original on disk.
			versionFilename = filenames.WithFileTypeExtension(versionFilename, fileType)
		}

		asset.versions[slot.sizeLabel] = Version{
			SizeLabel:   slot.sizeLabel,
			DownloadURL: res.DownloadURL,
			Size:        res.Size,
			FileType:    fileType,
			Filename:    filenames.Suffix(versionFilename, matchPolicy, 0),
		}
	}

	applyRawAlignment(asset.versions, rawAlignPolicy)

	return asset, nil
}

// applyRawAlignment swaps the "original" and "alternative" versions when
// the RAW file is on the wrong side of the configured policy, e.g. under
// RawAlignAsOriginal a RAW alternative is promoted to original and its
// JPEG sibling demoted, matching THE SERVICE's own original/alternative
// slot convention. Each version already carries the filename matching its
// own FileType (see the WithFileTypeExtension call in newAsset above), so
// a plain swap is all that's needed -- it does not merge the two onto a
// shared basename the way filenames.AlignRaw does.
func applyRawAlignment(versions map[string]Version, policy filenames.RawAlignPolicy) {
	if policy == filenames.RawAlignOff {
		return
	}

	orig, hasOrig := versions["original"]
	alt, hasAlt := versions["alternative"]

	if !hasOrig || !hasAlt {
		return
	}

	switch {
	case isRawFileType(alt.FileType) && policy == filenames.RawAlignAsOriginal:
		versions["original"], versions["alternative"] = alt, orig
	case isRawFileType(orig.FileType) && policy == filenames.RawAlignAsAlternate:
		versions["original"], versions["alternative"] = alt, orig
	}
}

func isRawFileType(fileType string) bool {
	return strings.Contains(strings.ToLower(fileType), "raw")
}
