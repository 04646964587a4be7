package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"wishboard/domain"
)

const (
	wishPartition = "wishes"
	edmInt64      = "Edm.Int64"
)

var errTableNotConfigured = errors.New("table endpoint or access key not configured")

// TableConfig carries the credentials for the remote table backend. Either
// ConnectionString or the ServiceURL/AccountKey pair must be set.
type TableConfig struct {
	ConnectionString string
	ServiceURL       string
	AccountKey       string
	Table            string
}

// Configured reports whether enough credentials are present to build a client.
func (c TableConfig) Configured() bool {
	return c.ConnectionString != "" || (c.ServiceURL != "" && c.AccountKey != "")
}

type tableClient interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// TableStore keeps one table entity per wish. Each operation is a single round trip.
type TableStore struct {
	table tableClient
}

func tableClientOptions() *aztables.ClientOptions {
	return &aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

// NewTableStore builds the remote table backend. Missing credentials are not
// an error here; every operation then fails with domain.ErrBackendUnavailable.
func NewTableStore(cfg TableConfig) (*TableStore, error) {
	if !cfg.Configured() {
		return &TableStore{}, nil
	}
	if cfg.Table == "" {
		cfg.Table = wishPartition
	}

	var (
		svc *aztables.ServiceClient
		err error
	)
	if cfg.ConnectionString != "" {
		svc, err = aztables.NewServiceClientFromConnectionString(cfg.ConnectionString, tableClientOptions())
	} else {
		var account string
		account, err = accountFromURL(cfg.ServiceURL)
		if err != nil {
			return nil, err
		}
		var cred *aztables.SharedKeyCredential
		cred, err = aztables.NewSharedKeyCredential(account, cfg.AccountKey)
		if err != nil {
			return nil, err
		}
		svc, err = aztables.NewServiceClientWithSharedKey(cfg.ServiceURL, cred, tableClientOptions())
	}
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(cfg.Table)}, nil
}

// accountFromURL derives the storage account name from a table endpoint.
// https://<account>.table.core.windows.net carries it in the host, emulator
// style endpoints (http://127.0.0.1:10002/<account>) in the first path segment.
func accountFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse table url: %w", err)
	}
	host := u.Hostname()
	if strings.Contains(host, ".table.") {
		return strings.SplitN(host, ".", 2)[0], nil
	}
	if seg := strings.Trim(u.Path, "/"); seg != "" {
		return strings.SplitN(seg, "/", 2)[0], nil
	}
	return "", fmt.Errorf("cannot derive account name from %q", raw)
}

type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type wishEntity struct {
	entityKeys
	Text          string `json:"Text"`
	Status        string `json:"Status"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

type wishStatusUpdate struct {
	entityKeys
	Status string `json:"Status"`
}

type storedWish struct {
	RowKey    string          `json:"RowKey"`
	Text      string          `json:"Text"`
	Status    string          `json:"Status"`
	CreatedAt json.RawMessage `json:"CreatedAt"`
}

func decodeWishEntity(data []byte) (domain.Wish, error) {
	var ent storedWish
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Wish{}, err
	}
	w := domain.Wish{ID: ent.RowKey, Text: ent.Text, Status: domain.Status(ent.Status)}
	created, err := strconv.ParseInt(strings.Trim(string(ent.CreatedAt), `"`), 10, 64)
	if err != nil {
		// Rows written without the column fall back to the timestamp id.
		created, _ = strconv.ParseInt(ent.RowKey, 10, 64)
	}
	w.CreatedAt = created
	return w, nil
}

// boardWishes drops records whose status is not one of the board columns,
// such as rows edited outside the API. The stored data is left untouched.
func boardWishes(wishes []domain.Wish, source string) []domain.Wish {
	kept := wishes[:0]
	for _, w := range wishes {
		if !w.Status.Valid() {
			log.WithFields(log.Fields{"id": w.ID, "status": w.Status, "source": source}).Warn("skipping wish with unknown status")
			continue
		}
		kept = append(kept, w)
	}
	return kept
}

func (s *TableStore) client() (tableClient, error) {
	if s.table == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, errTableNotConfigured)
	}
	return s.table, nil
}

// EnsureTable creates the backing table, tolerating an existing one.
func (s *TableStore) EnsureTable(ctx context.Context) error {
	tc, err := s.client()
	if err != nil {
		return err
	}
	if _, err := tc.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

func (s *TableStore) List(ctx context.Context) ([]domain.Wish, error) {
	tc, err := s.client()
	if err != nil {
		return nil, err
	}
	filter := "PartitionKey eq '" + wishPartition + "'"
	pager := tc.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	wishes := []domain.Wish{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list wishes: %v", domain.ErrBackendUnavailable, err)
		}
		for _, e := range resp.Entities {
			w, err := decodeWishEntity(e)
			if err != nil {
				return nil, fmt.Errorf("%w: decode wish: %v", domain.ErrBackendUnavailable, err)
			}
			wishes = append(wishes, w)
		}
	}
	wishes = boardWishes(wishes, "table")
	domain.SortNewestFirst(wishes)
	return wishes, nil
}

func (s *TableStore) Create(ctx context.Context, text string) (domain.Wish, error) {
	w, err := domain.NewWish(text)
	if err != nil {
		return domain.Wish{}, err
	}
	tc, err := s.client()
	if err != nil {
		return domain.Wish{}, err
	}
	payload, err := json.Marshal(wishEntity{
		entityKeys:    entityKeys{PartitionKey: wishPartition, RowKey: w.ID},
		Text:          w.Text,
		Status:        string(w.Status),
		CreatedAt:     w.CreatedAt,
		CreatedAtType: edmInt64,
	})
	if err != nil {
		return domain.Wish{}, err
	}
	if _, err := tc.AddEntity(ctx, payload, nil); err != nil {
		return domain.Wish{}, fmt.Errorf("%w: insert wish: %v", domain.ErrBackendUnavailable, err)
	}
	return w, nil
}

// UpdateStatus merges the new status into the entity. A missing row is a no-op.
func (s *TableStore) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}
	tc, err := s.client()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(wishStatusUpdate{
		entityKeys: entityKeys{PartitionKey: wishPartition, RowKey: id},
		Status:     string(status),
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = tc.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: update wish: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *TableStore) Delete(ctx context.Context, id string) error {
	tc, err := s.client()
	if err != nil {
		return err
	}
	if _, err := tc.DeleteEntity(ctx, wishPartition, id, nil); err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: delete wish: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
