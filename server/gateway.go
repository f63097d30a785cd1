// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lnsim/ln-network-runner/rpcpb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errInvalidID = errors.New("invalid network id")

type (
	// HTTPResponse wraps http.ResponseWriter with JSON helpers.
	HTTPResponse struct {
		http.ResponseWriter
	}

	// HTTPError is the body of every failed gateway response.
	HTTPError struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		// gRPC status code name, e.g. "NotFound"
		Status string `json:"status"`
	}
)

// JSON writes appropriate headers and JSON body to the http response
func (hr *HTTPResponse) JSON(code int, obj interface{}) {
	hr.Header().Set("Content-Type", "application/json")
	hr.WriteHeader(code)
	if err := json.NewEncoder(hr).Encode(obj); err != nil {
		zap.L().Warn("couldn't encode response", zap.Error(err))
	}
}

// JSONError writes [err], which may be a gRPC status error, with the HTTP
// status matching its code.
func (hr *HTTPResponse) JSONError(err error) {
	st := status.Convert(err)
	code := httpStatus(st.Code())
	hr.JSON(code, &HTTPError{
		Message: st.Message(),
		Code:    code,
		Status:  st.Code().String(),
	})
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition, codes.Aborted:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Canceled:
		return 499
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type gateway struct {
	log    *zap.Logger
	client rpcpb.ControlServiceClient
}

// newGateway routes the HTTP API to [client], and serves the metrics
// gathered by [gatherer] on /metrics.
func newGateway(client rpcpb.ControlServiceClient, gatherer prometheus.Gatherer, log *zap.Logger) http.Handler {
	g := &gateway{log: log, client: client}

	router := mux.NewRouter()
	router.StrictSlash(true)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/v1/ping", g.ping).Methods("GET")

	const prefix = "/v1/networks"
	router.HandleFunc(prefix, g.list).Methods("GET")
	router.HandleFunc(prefix, g.create).Methods("POST")
	sub := router.PathPrefix(prefix).Subrouter()
	sub.HandleFunc("/{networkID}", g.find).Methods("GET")
	sub.HandleFunc("/{networkID}", g.remove).Methods("DELETE")
	sub.HandleFunc("/{networkID}/start", g.start).Methods("POST")
	sub.HandleFunc("/{networkID}/stop", g.stop).Methods("POST")
	sub.HandleFunc("/{networkID}/rename", g.rename).Methods("POST")
	sub.HandleFunc("/{networkID}/missing-images", g.missingImages).Methods("GET")
	return router
}

func networkID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["networkID"], 10, 64)
	if err != nil || id == 0 {
		return 0, status.Error(codes.InvalidArgument, errInvalidID.Error())
	}
	return id, nil
}

func decode(r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

func (g *gateway) ping(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	resp, err := g.client.Ping(r.Context(), &rpcpb.PingRequest{})
	if err != nil {
		hr.JSONError(err)
		return
	}
	hr.JSON(http.StatusOK, resp)
}

func (g *gateway) list(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	resp, err := g.client.List(r.Context(), &rpcpb.ListRequest{})
	if err != nil {
		hr.JSONError(err)
		return
	}
	hr.JSON(http.StatusOK, resp)
}

func (g *gateway) create(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	req := &rpcpb.CreateRequest{}
	if err := decode(r, req); err != nil {
		hr.JSONError(err)
		return
	}
	resp, err := g.client.Create(r.Context(), req)
	if err != nil {
		hr.JSONError(err)
		return
	}
	hr.JSON(http.StatusCreated, resp)
}

func (g *gateway) find(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	id, err := networkID(r)
	if err != nil {
		hr.JSONError(err)
		return
	}
	resp, err := g.client.Find(r.Context(), &rpcpb.FindRequest{Id: id})
	if err != nil {
		hr.JSONError(err)
		return
	}
	hr.JSON(http.StatusOK, resp)
}

func (g *gateway) start(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	id, err := networkID(r)
	if err != nil {
		hr.JSONError(err)
		return
	}
	resp, err := g.client.Start(r.Context(), &rpcpb.StartRequest{Id: id})
	if err != nil {
		hr.JSONError(err)
		return
	}
	hr.JSON(http.StatusOK, resp)
}

func (g *gateway) stop(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	id, err := networkID(r)
	if err != nil {
		hr.JSONError(err)
		return
	}
	resp, err := g.client.Stop(r.Context(), &rpcpb.StopRequest{Id: id})
	if err != nil {
		hr.JSONError(err)
		return
	}
	hr.JSON(http.StatusOK, resp)
}

func (g *gateway) rename(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	id, err := networkID(r)
	if err != nil {
		hr.JSONError(err)
		return
	}
	req := &rpcpb.RenameRequest{}
	if err := decode(r, req); err != nil {
		hr.JSONError(err)
		return
	}
	req.Id = id
	resp, err := g.client.Rename(r.Context(), req)
	if err != nil {
		hr.JSONError(err)
		return
	}
	hr.JSON(http.StatusOK, resp)
}

func (g *gateway) remove(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	id, err := networkID(r)
	if err != nil {
		hr.JSONError(err)
		return
	}
	if _, err := g.client.Remove(r.Context(), &rpcpb.RemoveRequest{Id: id}); err != nil {
		hr.JSONError(err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *gateway) missingImages(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	id, err := networkID(r)
	if err != nil {
		hr.JSONError(err)
		return
	}
	resp, err := g.client.MissingImages(r.Context(), &rpcpb.MissingImagesRequest{Id: id})
	if err != nil {
		hr.JSONError(err)
		return
	}
	hr.JSON(http.StatusOK, resp)
}
