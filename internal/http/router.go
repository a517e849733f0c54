package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/raptorgraph-backend/internal/http/handlers"
	httpMW "github.com/yungbote/raptorgraph-backend/internal/http/middleware"
)

type RouterConfig struct {
	ServiceName string
	CORSOrigins []string

	RetrievalHandler *httpH.RetrievalHandler
	DocumentHandler  *httpH.DocumentHandler
	TreeHandler      *httpH.TreeHandler
	DatasetHandler   *httpH.DatasetHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "raptorgraph"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	v1 := r.Group("/v1")
	{
		if cfg.RetrievalHandler != nil {
			v1.POST("/retrieve", cfg.RetrievalHandler.Retrieve)
		}
		if cfg.DocumentHandler != nil {
			v1.POST("/documents/ingest", cfg.DocumentHandler.Ingest)
		}
		if cfg.TreeHandler != nil {
			v1.POST("/trees/build", cfg.TreeHandler.Build)
		}
		if cfg.DatasetHandler != nil {
			v1.DELETE("/datasets/:dataset_id", cfg.DatasetHandler.Delete)
		}
	}

	return r
}
