package mongostore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"postboard/internal/store"
	"postboard/internal/store/mongostore"
	"postboard/internal/store/storetest"
)

// TestMongo needs a reachable server, e.g. MONGO_TEST_URL=mongodb://localhost:27017.
// Every subtest gets its own database, dropped afterwards.
func TestMongo(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URL")
	if uri == "" {
		t.Skip("MONGO_TEST_URL not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		name := fmt.Sprintf("postboard_test_%d", time.Now().UnixNano())
		st, err := mongostore.Open(ctx, uri, name)
		require.NoError(t, err)

		t.Cleanup(func() {
			_ = mongostore.DropDatabase(context.Background(), st)
			_ = st.Close(context.Background())
		})

		return st
	})
}
