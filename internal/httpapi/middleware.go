package httpapi

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	logx "promptcron/pkg/logx"
)

const maxLoggedBody = 4 << 10

type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.buf.Len(); room > 0 {
		w.buf.Write(b[:min(len(b), room)])
	}
	return w.ResponseWriter.Write(b)
}

// requestLogger logs one line per request. With bodies enabled the request
// and response JSON are logged at debug level as well.
func requestLogger(log logx.Logger, bodies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var rec *bodyRecorder
		if bodies && log.Enabled(logx.LevelDebug) {
			if c.Request.Body != nil {
				raw, _ := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
				c.Request.Body = io.NopCloser(bytes.NewReader(raw))
				log.Debug("request", logx.String("method", c.Request.Method), logx.String("path", c.Request.URL.Path), logx.String("body", truncate(raw)))
			}
			rec = &bodyRecorder{ResponseWriter: c.Writer}
			c.Writer = rec
		}

		c.Next()

		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("client", c.ClientIP()),
		}
		if rec != nil {
			fields = append(fields, logx.String("body", truncate(rec.buf.Bytes())))
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("response", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("response", fields...)
		default:
			log.Info("response", fields...)
		}
	}
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}
