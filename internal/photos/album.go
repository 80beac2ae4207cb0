package photos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/icloud-photos/icloudpd-go/internal/filenames"
	"github.com/icloud-photos/icloudpd-go/internal/transport"
)

// Direction controls the sort order Album.iterate walks records in.
type Direction string

const (
	Ascending  Direction = "ASCENDING"
	Descending Direction = "DESCENDING"
)

// desiredKeys is the fixed field enumeration POSTed with every
// records/query call: every version resource, item metadata, and
// bookkeeping field the client ever reads.
var desiredKeys = []string{
	"resOriginalRes", "resOriginalFileType",
	"resOriginalAltRes", "resOriginalAltFileType",
	"resJPEGFullRes", "resJPEGFullFileType",
	"resJPEGMedRes", "resJPEGMedFileType",
	"resJPEGThumbRes", "resJPEGThumbFileType",
	"resOriginalVidComplRes", "resOriginalVidComplFileType",
	"resVidMedRes", "resVidMedFileType",
	"resVidSmallRes", "resVidSmallFileType",
	"itemType", "filenameEnc", "assetDate", "isFavorite", "isDeleted",
	"recordChangeTag", "masterRef", "recordName",
}

// maxPaginationRetries bounds the error-handler retry loop in
// Album.Iterate.
const maxPaginationRetries = 5

// RetryHandler is invoked on a records/query error with the error and the
// current retry count; returning false aborts iteration.
type RetryHandler func(err error, retries int) bool

// Album represents one photo library album/collection.
type Album struct {
	client      *transport.Client
	baseURL     string
	Name        string
	ListType    string // recordType used in records/query
	QueryFilter map[string]any
	Direction   Direction

	matchPolicy    filenames.FileMatchPolicy
	cleanPolicy    func(string) string
	rawAlignPolicy filenames.RawAlignPolicy

	count     int
	countRead bool
}

// Count returns the album's HyperionIndexCountLookup result, cached after
// the first read.
func (al *Album) Count(ctx context.Context) (int, error) {
	if al.countRead {
		return al.count, nil
	}

	reqBody, err := json.Marshal(struct {
		BatchQuery []struct {
			ResultsLimit int               `json:"resultsLimit"`
			Query        map[string]any    `json:"query"`
			ZoneID       map[string]string `json:"zoneID"`
		} `json:"batch"`
	}{
		BatchQuery: []struct {
			ResultsLimit int               `json:"resultsLimit"`
			Query        map[string]any    `json:"query"`
			ZoneID       map[string]string `json:"zoneID"`
		}{{
			ResultsLimit: 1,
			Query: map[string]any{
				"recordType": "HyperionIndexCountLookup",
				"filterBy":   al.QueryFilter,
			},
		}},
	})
	if err != nil {
		return 0, err
	}

	url := al.baseURL + "/records/query/batch"

	body, _, err := al.client.Do(ctx, transport.Request{
		Method: http.MethodPost, URL: url,
		Body:    strings.NewReader(string(reqBody)),
		Headers: jsonPostHeaders(),
	})
	if err != nil {
		return 0, fmt.Errorf("photos: counting album %s: %w", al.Name, err)
	}

	var resp struct {
		Results []struct {
			Records []struct {
				Fields struct {
					ItemCount struct {
						Value int `json:"value"`
					} `json:"itemCount"`
				} `json:"fields"`
			} `json:"records"`
		} `json:"results"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("photos: parsing count response: %w", err)
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Records) == 0 {
		return 0, fmt.Errorf("photos: empty count response for album %s", al.Name)
	}

	al.count = resp.Results[0].Records[0].Fields.ItemCount.Value
	al.countRead = true

	return al.count, nil
}

// recordsQueryResponse is the shape of one records/query page.
type recordsQueryResponse struct {
	Records []struct {
		RecordName string                    `json:"recordName"`
		RecordType string                    `json:"recordType"`
		Fields     map[string]recordFieldJSON `json:"fields"`
	} `json:"records"`
}

type recordFieldJSON struct {
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type"`
}

const pageSize = 100

// Iterate walks the album's records, yielding Assets via onAsset until
// exhausted, a terminal error occurs, or onAsset returns false (used for
// the SyncDriver's mid-stream cancel flag). handler is consulted on each
// page error.
func (al *Album) Iterate(ctx context.Context, handler RetryHandler, onAsset func(*Asset) (keepGoing bool)) error {
	count, err := al.Count(ctx)
	if err != nil {
		return err
	}

	offset := 0
	if al.Direction == Descending {
		offset = count - 1
	}

	retries := 0

	for {
		masters, assetsByMaster, err := al.queryPage(ctx, offset)
		if err != nil {
			if handler != nil {
				retries++
				if !handler(err, retries) {
					return err
				}

				if retries > maxPaginationRetries {
					return fmt.Errorf("photos: exceeded max pagination retries: %w", err)
				}

				continue
			}

			return err
		}

		retries = 0

		if len(masters) == 0 {
			return nil
		}

		if al.Direction == Descending {
			offset -= len(masters)
		} else {
			offset += len(masters)
		}

		for _, master := range masters {
			rec := mergeRecord(master, assetsByMaster[master.RecordName])

			asset, err := newAsset(rec, al.cleanPolicy, al.matchPolicy, al.rawAlignPolicy)
			if err != nil {
				return err
			}

			if !onAsset(asset) {
				return nil
			}
		}
	}
}

// masterRecord holds one CPLMaster record. CPLAsset records are kept as
// field maps keyed by their masterRef and merged into the matching master
// by mergeRecord.
type masterRecord struct {
	RecordName      string
	RecordChangeTag string
	Fields          map[string]recordFieldJSON
}

func (al *Album) queryPage(ctx context.Context, offset int) ([]masterRecord, map[string]map[string]recordFieldJSON, error) {
	reqBody, err := json.Marshal(struct {
		StartRank    int            `json:"startRank"`
		Direction    string         `json:"direction"`
		RecordType   string         `json:"recordType"`
		FilterBy     map[string]any `json:"filterBy"`
		ResultsLimit int            `json:"resultsLimit"`
		DesiredKeys  []string       `json:"desiredKeys"`
	}{
		StartRank:    offset,
		Direction:    string(al.Direction),
		RecordType:   al.ListType,
		FilterBy:     al.QueryFilter,
		ResultsLimit: pageSize * 2,
		DesiredKeys:  desiredKeys,
	})
	if err != nil {
		return nil, nil, err
	}

	url := al.baseURL + "/records/query"

	body, _, err := al.client.Do(ctx, transport.Request{
		Method: http.MethodPost, URL: url,
		Body:    strings.NewReader(string(reqBody)),
		Headers: jsonPostHeaders(),
	})
	if err != nil {
		return nil, nil, err
	}

	var resp recordsQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("photos: parsing records/query response: %w", err)
	}

	var masters []masterRecord

	assetsByMaster := make(map[string]map[string]recordFieldJSON)

	for _, rec := range resp.Records {
		switch rec.RecordType {
		case "CPLMaster":
			masters = append(masters, masterRecord{
				RecordName: rec.RecordName,
				Fields:     rec.Fields,
			})
		case "CPLAsset":
			masterRef := stringField(rec.Fields, "masterRef")
			if masterRef != "" {
				assetsByMaster[masterRef] = rec.Fields
			}
		}
	}

	return masters, assetsByMaster, nil
}

func mergeRecord(master masterRecord, assetFields map[string]recordFieldJSON) Record {
	rec := Record{
		RecordName: master.RecordName,
		Resources:  make(map[string]ResourceField),
	}

	rec.ItemType = stringField(master.Fields, "itemType")
	rec.RecordChangeTag = stringField(master.Fields, "recordChangeTag")
	rec.IsFavorite = intField(assetFields, "isFavorite") != 0
	rec.AssetDate = millisField(assetFields, "assetDate")

	if enc, ok := master.Fields["filenameEnc"]; ok {
		rec.FilenameEnc = decodeFilenameField(enc)
	}

	for key, field := range master.Fields {
		switch {
		case strings.HasSuffix(key, "Res"):
			res := rec.Resources[key]

			var resValue struct {
				DownloadURL string `json:"downloadURL"`
				Size        int64  `json:"size"`
			}

			_ = json.Unmarshal(field.Value, &resValue)

			res.DownloadURL = resValue.DownloadURL
			res.Size = resValue.Size
			rec.Resources[key] = res
		case strings.HasSuffix(key, "FileType"):
			res := rec.Resources[key]
			res.FileType = stringFieldValue(field)
			rec.Resources[key] = res
		}
	}

	return rec
}

func millisField(fields map[string]recordFieldJSON, key string) time.Time {
	f, ok := fields[key]
	if !ok {
		return time.Time{}
	}

	var ms int64
	_ = json.Unmarshal(f.Value, &ms)

	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}

func decodeFilenameField(field recordFieldJSON) *filenames.EncodedFilename {
	var s string
	_ = json.Unmarshal(field.Value, &s)

	return &filenames.EncodedFilename{Type: field.Type, Value: s}
}

func stringField(fields map[string]recordFieldJSON, key string) string {
	f, ok := fields[key]
	if !ok {
		return ""
	}

	return stringFieldValue(f)
}

func stringFieldValue(f recordFieldJSON) string {
	var s string
	_ = json.Unmarshal(f.Value, &s)

	return s
}

func intField(fields map[string]recordFieldJSON, key string) int {
	f, ok := fields[key]
	if !ok {
		return 0
	}

	var n int
	_ = json.Unmarshal(f.Value, &n)

	return n
}

func jsonPostHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")

	return h
}
