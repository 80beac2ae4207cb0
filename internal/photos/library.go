package photos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/icloud-photos/icloudpd-go/internal/filenames"
	"github.com/icloud-photos/icloudpd-go/internal/transport"
)

// ErrLibraryNotIndexed is the distinguished error PhotoService.IndexReady
// returns when CheckIndexingState reports anything other than FINISHED.
var ErrLibraryNotIndexed = errors.New("photos: library is still indexing")

// systemRoots are folder records filtered out of listAlbums results.
var systemRoots = map[string]bool{
	"----Root-Folder----":         true,
	"----Project-Root-Folder----": true,
}

// smartAlbumTable is the fixed set of built-in albums every library
// exposes without a CPLAlbumByPositionLive lookup.
var smartAlbumTable = []struct {
	name       string
	listType   string
	queryField string
}{
	{name: "All Photos", listType: "CPLAssetByAssetDateWithoutHiddenOrDeleted", queryField: ""},
	{name: "Favorites", listType: "CPLAssetAndMasterByAssetDateWithoutHiddenOrDeleted", queryField: "isFavorite"},
	{name: "Recently Deleted", listType: "CPLAssetAndMasterInExpungedAlbumByAssetDate", queryField: ""},
	{name: "Videos", listType: "CPLAssetAndMasterByAssetDateWithoutHiddenOrDeleted", queryField: "itemType"},
}

// PhotoService is the root entry point into a user's photo libraries,
// analogous to pyicloud_ipd's PhotoLibrary accessor.
type PhotoService struct {
	client  *transport.Client
	baseURL string

	matchPolicy    filenames.FileMatchPolicy
	cleanPolicy    func(string) string
	rawAlignPolicy filenames.RawAlignPolicy
}

// New builds a PhotoService bound to the ckdatabasews base URL resolved
// from the authenticated session's webservices map.
func New(client *transport.Client, baseURL string, matchPolicy filenames.FileMatchPolicy, cleanPolicy func(string) string, rawAlignPolicy filenames.RawAlignPolicy) *PhotoService {
	return &PhotoService{client: client, baseURL: baseURL, matchPolicy: matchPolicy, cleanPolicy: cleanPolicy, rawAlignPolicy: rawAlignPolicy}
}

// IndexReady issues CheckIndexingState and returns ErrLibraryNotIndexed
// unless the server reports FINISHED.
func (p *PhotoService) IndexReady(ctx context.Context) error {
	reqBody, err := json.Marshal(struct {
		Query struct {
			RecordType string `json:"recordType"`
		} `json:"query"`
	}{Query: struct {
		RecordType string `json:"recordType"`
	}{RecordType: "CheckIndexingState"}})
	if err != nil {
		return err
	}

	url := p.baseURL + "/records/query"

	body, _, err := p.client.Do(ctx, transport.Request{
		Method: http.MethodPost, URL: url,
		Body:    strings.NewReader(string(reqBody)),
		Headers: jsonPostHeaders(),
	})
	if err != nil {
		return fmt.Errorf("photos: checking indexing state: %w", err)
	}

	var resp struct {
		Records []struct {
			Fields struct {
				State struct {
					Value string `json:"value"`
				} `json:"state"`
			} `json:"fields"`
		} `json:"records"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("photos: parsing indexing state response: %w", err)
	}

	if len(resp.Records) == 0 || resp.Records[0].Fields.State.Value != "FINISHED" {
		return ErrLibraryNotIndexed
	}

	return nil
}

// Library is one photo library (the default personal library, or a shared
// library, keyed by zone name).
type Library struct {
	service *PhotoService
	ZoneName string
}

// Library returns the named library accessor. THE SERVICE's personal
// library zone is conventionally named "PrimarySync".
func (p *PhotoService) Library(zoneName string) *Library {
	return &Library{service: p, ZoneName: zoneName}
}

// ListAlbums merges the fixed smart-album table with a
// CPLAlbumByPositionLive query, filtering system roots and deleted
// folders.
func (l *Library) ListAlbums(ctx context.Context) ([]*Album, error) {
	albums := make([]*Album, 0, len(smartAlbumTable))

	for _, smart := range smartAlbumTable {
		filter := map[string]any{}
		if smart.queryField != "" {
			filter["fieldName"] = smart.queryField
		}

		albums = append(albums, &Album{
			client:         l.service.client,
			baseURL:        l.service.baseURL,
			Name:           smart.name,
			ListType:       smart.listType,
			QueryFilter:    filter,
			Direction:      Ascending,
			matchPolicy:    l.service.matchPolicy,
			cleanPolicy:    l.service.cleanPolicy,
			rawAlignPolicy: l.service.rawAlignPolicy,
		})
	}

	custom, err := l.queryCustomAlbums(ctx)
	if err != nil {
		return nil, err
	}

	return append(albums, custom...), nil
}

// queryCustomAlbums paginates CPLAlbumByPositionLive by continuation
// marker, filtering system roots and deleted folders.
func (l *Library) queryCustomAlbums(ctx context.Context) ([]*Album, error) {
	var (
		out        []*Album
		continuation string
	)

	for {
		reqBody, err := json.Marshal(struct {
			Query struct {
				RecordType string `json:"recordType"`
			} `json:"query"`
			ContinuationMarker string `json:"continuationMarker,omitempty"`
			ResultsLimit       int    `json:"resultsLimit"`
		}{
			Query: struct {
				RecordType string `json:"recordType"`
			}{RecordType: "CPLAlbumByPositionLive"},
			ContinuationMarker: continuation,
			ResultsLimit:       pageSize,
		})
		if err != nil {
			return nil, err
		}

		url := l.service.baseURL + "/records/query"

		body, _, err := l.service.client.Do(ctx, transport.Request{
			Method: http.MethodPost, URL: url,
			Body:    strings.NewReader(string(reqBody)),
			Headers: jsonPostHeaders(),
		})
		if err != nil {
			return nil, fmt.Errorf("photos: listing albums: %w", err)
		}

		var resp struct {
			Records []struct {
				RecordName string `json:"recordName"`
				Fields     struct {
					AlbumNameEnc struct {
						Value string `json:"value"`
					} `json:"albumNameEnc"`
					IsDeleted struct {
						Value int `json:"value"`
					} `json:"isDeleted"`
				} `json:"fields"`
			} `json:"records"`
			ContinuationMarker string `json:"continuationMarker"`
		}

		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("photos: parsing album list response: %w", err)
		}

		for _, rec := range resp.Records {
			if systemRoots[rec.RecordName] || rec.Fields.IsDeleted.Value != 0 {
				continue
			}

			out = append(out, &Album{
				client:         l.service.client,
				baseURL:        l.service.baseURL,
				Name:           rec.Fields.AlbumNameEnc.Value,
				ListType:       "CPLContainerRelationLiveByAssetDate",
				QueryFilter:    map[string]any{"albumId": rec.RecordName},
				Direction:      Ascending,
				matchPolicy:    l.service.matchPolicy,
				cleanPolicy:    l.service.cleanPolicy,
				rawAlignPolicy: l.service.rawAlignPolicy,
			})
		}

		if resp.ContinuationMarker == "" {
			break
		}

		continuation = resp.ContinuationMarker
	}

	return out, nil
}

// Album resolves a named album from ListAlbums, returning nil if absent.
func (l *Library) Album(ctx context.Context, name string) (*Album, error) {
	albums, err := l.ListAlbums(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range albums {
		if a.Name == name {
			return a, nil
		}
	}

	return nil, fmt.Errorf("photos: album %q not found", name)
}
