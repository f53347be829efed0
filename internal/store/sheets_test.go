package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
)

// fakeSheets serves the two Values endpoints the store uses from an in-memory grid
type fakeSheets struct {
	mu     sync.Mutex
	grid   [][]string
	ranges []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := strings.Index(r.URL.Path, "/values/")
	if idx < 0 {
		http.NotFound(w, r)
		return
	}
	rng := r.URL.Path[idx+len("/values/"):]
	f.ranges = append(f.ranges, r.Method+" "+rng)

	switch r.Method {
	case http.MethodGet:
		values := make([][]interface{}, len(f.grid))
		for i, row := range f.grid {
			values[i] = make([]interface{}, len(row))
			for j, v := range row {
				values[i][j] = v
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"range":          rng,
			"majorDimension": "ROWS",
			"values":         values,
		})
	case http.MethodPut:
		if r.URL.Query().Get("valueInputOption") != "RAW" {
			http.Error(w, "valueInputOption required", http.StatusBadRequest)
			return
		}
		var body sheets.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		row, col := parseA1(rng[strings.LastIndex(rng, "!")+1:])
		for len(f.grid) <= row {
			f.grid = append(f.grid, nil)
		}
		for len(f.grid[row]) <= col {
			f.grid[row] = append(f.grid[row], "")
		}
		f.grid[row][col] = body.Values[0][0].(string)
		json.NewEncoder(w).Encode(map[string]interface{}{"updatedCells": 1})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// parseA1 converts "H3" into zero-based row 2, column 7
func parseA1(ref string) (int, int) {
	col := 0
	i := 0
	for ; i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z'; i++ {
		col = col*26 + int(ref[i]-'A'+1)
	}
	row, _ := strconv.Atoi(ref[i:])
	return row - 1, col - 1
}

func TestSheetsStore(t *testing.T) {
	fake := &fakeSheets{grid: [][]string{
		{"Email", "Password", "MAC Address", "User Mods", "Mod Name", "Mod Internal Name", "Google Drive Link", "Serial Key"},
		{"a@x.com", "pw", "", "Mod A, Mod B", "Mod A", "mod_a", "https://drive.google.com/file/d/AAA/view", "ABC123"},
		{"bound@x.com", "pw", "aa:bb:cc:dd:ee:ff", "Mod A", "Mod C", "mod_c", "", "KEYC"},
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	service, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	s := NewSheetsStoreWithService(service, config.StoreConfig{SheetID: "sheet-id"}, nil)
	exerciseStore(t, s)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, "11:22:33:44:55:66", fake.grid[1][2], "binding lands in the MAC Address column")
	require.Equal(t, "NEW1", fake.grid[1][7], "key lands in the Serial Key column")
}

func TestSheetsStore_QuotesSheetNames(t *testing.T) {
	fake := &fakeSheets{grid: [][]string{
		{"Email", "Password", "MAC Address", "User Mods", "Mod Name", "Mod Internal Name", "Google Drive Link", "Serial Key"},
		{"a@x.com", "pw", "", "Mod A", "Mod A", "mod_a", "https://drive.google.com/file/d/AAA/view", "ABC123"},
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	service, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	s := NewSheetsStoreWithService(service, config.StoreConfig{SheetID: "sheet-id", AccountsSheet: "Driver's Records!"}, nil)
	require.NoError(t, s.UpdateAccountDeviceBinding(context.Background(), "a@x.com", "11:22:33:44:55:66"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, []string{
		"GET 'Driver''s Records!'",
		"PUT 'Driver''s Records!'!C2",
	}, fake.ranges)
	require.Equal(t, "11:22:33:44:55:66", fake.grid[1][2])
}

func TestQuoteSheet(t *testing.T) {
	require.Equal(t, "'Sheet1'", quoteSheet("Sheet1"))
	require.Equal(t, "'Mod Catalog'", quoteSheet("Mod Catalog"))
	require.Equal(t, "'It''s'", quoteSheet("It's"))
}

func TestParseA1(t *testing.T) {
	row, col := parseA1("H3")
	require.Equal(t, 2, row)
	require.Equal(t, 7, col)

	row, col = parseA1("AA10")
	require.Equal(t, 9, row)
	require.Equal(t, 26, col)
}
