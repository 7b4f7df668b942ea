package server

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/unrolled/render"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
	// Index is the index.yaml entry that would serve a query failing for
	// lack of a composite index.
	Index string `json:"index,omitempty"`
}

func readJSON(r io.ReadCloser, data interface{}) error {
	defer r.Close()

	b, err := ioutil.ReadAll(r)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = json.Unmarshal(b, data); err != nil {
		return model.BadRequestf("invalid request body: %v", err)
	}
	return nil
}

// readJSONRespondError reads the body into data and writes a 400 response
// when that fails.
func readJSONRespondError(rd *render.Render, w http.ResponseWriter, r *http.Request, data interface{}) error {
	err := readJSON(r.Body, data)
	if err != nil {
		respondError(rd, w, err)
	}
	return err
}

func respondError(rd *render.Render, w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch cause := errors.Cause(err).(type) {
	case *model.ErrBadRequest:
		status = http.StatusBadRequest
	case *model.ErrNeedIndex:
		status = http.StatusBadRequest
		resp.Index = cause.Suggestion()
	case *model.ErrCursorNotFound, *model.ErrTransactionNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	rd.JSON(w, status, resp)
}

func appVar(r *http.Request) string {
	return mux.Vars(r)["app"]
}

func txVar(r *http.Request) (model.TxHandle, error) {
	handle, err := strconv.ParseUint(mux.Vars(r)["tx"], 10, 64)
	if err != nil {
		return model.TxHandle{}, model.BadRequestf("invalid transaction %q", mux.Vars(r)["tx"])
	}
	return model.TxHandle{AppID: appVar(r), Handle: handle}, nil
}

// txHandle turns the optional transaction field of a request into a
// handle.
func txHandle(app string, handle uint64) *model.TxHandle {
	if handle == 0 {
		return nil
	}
	return &model.TxHandle{AppID: app, Handle: handle}
}
