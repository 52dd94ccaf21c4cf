package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"voxtro/internal/pkg/ctxutil"
	"voxtro/internal/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	Convey("请求 ID 中间件", t, func() {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, c.GetString("request_id"))
		})

		Convey("未携带时生成新 ID", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
			So(w.Header().Get("X-Request-ID"), ShouldNotBeEmpty)
			So(w.Body.String(), ShouldEqual, w.Header().Get("X-Request-ID"))
		})

		Convey("携带时透传", func() {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("X-Request-ID", "req-123")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			So(w.Header().Get("X-Request-ID"), ShouldEqual, "req-123")
		})
	})
}

func TestCORS(t *testing.T) {
	Convey("CORS 中间件", t, func() {
		router := gin.New()
		router.Use(CORS())
		router.POST("/api", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		Convey("回显 Origin", func() {
			req := httptest.NewRequest(http.MethodPost, "/api", nil)
			req.Header.Set("Origin", "https://example.com")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://example.com")
		})

		Convey("预检请求返回 204", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api", nil)
			req.Header.Set("Origin", "https://example.com")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNoContent)
		})
	})
}

func TestAuth(t *testing.T) {
	Convey("JWT 认证中间件", t, func() {
		jwtUtil := jwt.NewJWT("test-secret", time.Hour)
		router := gin.New()
		router.Use(Auth(jwtUtil))
		router.GET("/me", func(c *gin.Context) {
			userID, _ := ctxutil.GetUserID(c.Request.Context())
			c.String(http.StatusOK, userID)
		})

		Convey("合法 token 注入 user_id", func() {
			token, err := jwtUtil.GenerateToken("user-1", "admin")
			So(err, ShouldBeNil)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "user-1")
		})

		Convey("缺少 header 返回 401", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("伪造 token 返回 401", func() {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer not-a-token")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("过期 token 返回 401", func() {
			expired := jwt.NewJWT("test-secret", -time.Hour)
			token, err := expired.GenerateToken("user-1", "admin")
			So(err, ShouldBeNil)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}
