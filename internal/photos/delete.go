package photos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/icloud-photos/icloudpd-go/internal/transport"
)

// Deleter issues the records/modify soft-delete call used by
// delete-after-download: {operationType: update, record: {fields:
// {isDeleted: {value: 1}}, recordChangeTag, recordName}}.
type Deleter struct {
	client  *transport.Client
	baseURL string
}

// NewDeleter builds a Deleter bound to the ckdatabasews base URL.
func NewDeleter(client *transport.Client, baseURL string) *Deleter {
	return &Deleter{client: client, baseURL: baseURL}
}

// Delete marks asset as deleted server-side.
func (d *Deleter) Delete(ctx context.Context, asset *Asset) error {
	reqBody, err := json.Marshal(struct {
		Operations []modifyOperation `json:"operations"`
	}{
		Operations: []modifyOperation{{
			OperationType: "update",
			Record: modifyRecord{
				RecordName:      asset.ID,
				RecordChangeTag: asset.RecordChangeTag,
				Fields: map[string]modifyFieldValue{
					"isDeleted": {Value: 1},
				},
			},
		}},
	})
	if err != nil {
		return err
	}

	url := d.baseURL + "/records/modify"

	_, _, err = d.client.Do(ctx, transport.Request{
		Method: http.MethodPost, URL: url,
		Body:    strings.NewReader(string(reqBody)),
		Headers: jsonPostHeaders(),
	})
	if err != nil {
		return fmt.Errorf("photos: deleting asset %s: %w", asset.ID, err)
	}

	return nil
}

type modifyOperation struct {
	OperationType string       `json:"operationType"`
	Record        modifyRecord `json:"record"`
}

type modifyRecord struct {
	RecordName      string                      `json:"recordName"`
	RecordChangeTag string                      `json:"recordChangeTag"`
	Fields          map[string]modifyFieldValue `json:"fields"`
}

type modifyFieldValue struct {
	Value int `json:"value"`
}
