// Servidor de destino para testar o gateway localmente: responde qualquer
// path e loga o cliente que o gateway deixou passar.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	mux := http.NewServeMux()
	mux.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>")
		log.Info("showTela accessed", zap.String("forwarded_for", r.Header.Get("X-Forwarded-For")))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Info("upstream hit",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("forwarded_for", r.Header.Get("X-Forwarded-For")),
			zap.String("request_id", r.Header.Get("X-Request-Id")),
		)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("upstream ok\n"))
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Info("upstream listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal("upstream server error", zap.Error(err))
	}
}
