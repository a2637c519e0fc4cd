package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

func testDashboardDoc(t *testing.T) (*dashboard.Dashboard, []byte) {
	t.Helper()

	d := &dashboard.Dashboard{
		ID:   "dash-sales",
		Name: "Sales Overview",
		Components: []*dashboard.Component{
			{
				ID:      "card-revenue",
				Kind:    dashboard.KindCard,
				Title:   "Revenue",
				Binding: dashboard.Binding{DatasetID: "orders", Column: "amount"},
				Config:  dashboard.Config{Aggregate: "sum"},
			},
		},
	}
	doc, err := json.Marshal(d)
	require.NoError(t, err)
	return d, doc
}

func TestDashboardsAdapter_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewDashboardsAdapter(db)
	want, doc := testDashboardDoc(t)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT definition FROM dashboards
		WHERE id = $1
	`)).WithArgs("dash-sales").WillReturnRows(
		sqlmock.NewRows([]string{"definition"}).AddRow(doc),
	)

	got, err := adapter.Load(context.Background(), "dash-sales")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	require.Len(t, got.Components, 1)
	assert.Equal(t, "card-revenue", got.Components[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardsAdapter_LoadNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewDashboardsAdapter(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT definition FROM dashboards
		WHERE id = $1
	`)).WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"definition"}))

	_, err = adapter.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, dashboard.ErrDashboardNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardsAdapter_SaveUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewDashboardsAdapter(db)
	d, doc := testDashboardDoc(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		INSERT INTO dashboards (id, name, definition, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name       = EXCLUDED.name,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at
	`)).WithArgs("dash-sales", "Sales Overview", doc).WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, adapter.Save(context.Background(), d))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardsAdapter_SaveRejectsInvalidDefinition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewDashboardsAdapter(db)

	// Missing ID fails validation before any SQL runs.
	err = adapter.Save(context.Background(), &dashboard.Dashboard{})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardsAdapter_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewDashboardsAdapter(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id FROM dashboards
		ORDER BY id ASC
	`)).WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow("dash-ops").AddRow("dash-sales"),
	)

	ids, err := adapter.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dash-ops", "dash-sales"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
