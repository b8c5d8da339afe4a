package bigquery

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/angelmondragon/storefront-orders/pkg/config"
	"google.golang.org/api/googleapi"
)

func TestOrdersTableTrimmed(t *testing.T) {
	if got := ordersTable(config.BigQueryConfig{OrdersTable: " order_snapshots "}); got != "order_snapshots" {
		t.Fatalf("expected order_snapshots, got %q", got)
	}
}

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", OrdersTable: "t"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{OrdersTable: "t"}, nil); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d"}, nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error, got %v", err)
	}
}

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}
	if opts := clientOptions(gcp); len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}

func TestNilClientIsNotInitialized(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.InsertOrderRows(context.Background(), nil); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(&googleapi.Error{Code: http.StatusNotFound}) {
		t.Fatalf("expected not found")
	}
	if isNotFound(errors.New("other")) {
		t.Fatalf("plain error is not a not-found")
	}
}
