package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setupAuthRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("db", db)
		c.Next()
	})
	router.POST("/v1/register", Register)
	router.POST("/v1/login", Login)
	return router
}

func TestRegisterCreatesUser(t *testing.T) {
	db, mock := setupTestDB(t)

	roleID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "roles"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(roleID, "attendee"))
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	router := setupAuthRouter(db)

	body, _ := json.Marshal(gin.H{
		"name":      "Ava Reyes",
		"email":     "ava@example.com",
		"password":  "sup3rsecret",
		"role_name": "attendee",
	})
	req := httptest.NewRequest("POST", "/v1/register", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	db, mock := setupTestDB(t)

	roleID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "roles"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(roleID, "attendee"))
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(uuid.New(), "ava@example.com"))

	router := setupAuthRouter(db)

	body, _ := json.Marshal(gin.H{
		"name":      "Ava Reyes",
		"email":     "ava@example.com",
		"password":  "sup3rsecret",
		"role_name": "attendee",
	})
	req := httptest.NewRequest("POST", "/v1/register", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	db, mock := setupTestDB(t)

	userID := uuid.New()
	roleID := uuid.New()
	hashed, err := bcrypt.GenerateFromPassword([]byte("sup3rsecret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password", "role_id"}).
			AddRow(userID, "Ava Reyes", "ava@example.com", string(hashed), roleID))
	mock.ExpectQuery(`SELECT \* FROM "roles"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(roleID, "attendee"))

	router := setupAuthRouter(db)

	body, _ := json.Marshal(gin.H{"email": "ava@example.com", "password": "sup3rsecret"})
	req := httptest.NewRequest("POST", "/v1/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	token, err := jwt.Parse(response.Token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("issued token must verify with the signing secret: %v", err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if claims["user_id"] != userID.String() {
		t.Errorf("expected user_id claim %q, got %v", userID, claims["user_id"])
	}
	if claims["role"] != "attendee" {
		t.Errorf("expected role claim attendee, got %v", claims["role"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	db, mock := setupTestDB(t)

	userID := uuid.New()
	roleID := uuid.New()
	hashed, _ := bcrypt.GenerateFromPassword([]byte("sup3rsecret"), bcrypt.MinCost)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password", "role_id"}).
			AddRow(userID, "ava@example.com", string(hashed), roleID))
	mock.ExpectQuery(`SELECT \* FROM "roles"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(roleID, "attendee"))

	router := setupAuthRouter(db)

	body, _ := json.Marshal(gin.H{"email": "ava@example.com", "password": "not-the-password"})
	req := httptest.NewRequest("POST", "/v1/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}
