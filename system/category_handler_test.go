package system

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/entity"
	"taskflow/storage/sqlite/sqlitetest"
)

func TestCategories_CreateAndList(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.CreateCategory(rec, httptest.NewRequest("POST", "/categories", jsonBody(t, map[string]string{
		"name": "Work", "description": "Office tasks", "icon": "briefcase",
	})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created entity.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)

	rec = httptest.NewRecorder()
	h.CreateCategory(rec, httptest.NewRequest("POST", "/categories", jsonBody(t, map[string]string{"name": "Work"})))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.CreateCategory(rec, httptest.NewRequest("POST", "/categories", jsonBody(t, map[string]string{"name": "ab"})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.GetCategories(rec, httptest.NewRequest("GET", "/categories", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []entity.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Work", list[0].Name)
}

func TestCreateTask_WithCategories(t *testing.T) {
	h := newTestHandler(t)
	alice := sqlitetest.MustCreateUser(t, h.DB, "alice")

	rec := httptest.NewRecorder()
	h.CreateCategory(rec, httptest.NewRequest("POST", "/categories", jsonBody(t, map[string]string{"name": "Work"})))
	require.Equal(t, http.StatusCreated, rec.Code)
	var work entity.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &work))

	task := createTask(t, h, alice.ID, map[string]interface{}{
		"title": "Write report", "due_date": due, "category_ids": []int64{work.ID},
	})

	assert.Equal(t, []int64{work.ID}, task.CategoryIDs)
}
