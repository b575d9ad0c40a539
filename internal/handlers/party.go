package handlers

import (
	"net/http"

	"github.com/diewo77/go-workshop/internal/httpx"
	"github.com/diewo77/go-workshop/internal/services"
	"github.com/sirupsen/logrus"
)

type PartyHandler struct {
	parties *services.PartyResolver
	log     logrus.FieldLogger
}

func NewPartyHandler(parties *services.PartyResolver, log logrus.FieldLogger) *PartyHandler {
	return &PartyHandler{parties: parties, log: log}
}

// Resolve: POST /parties/resolve
func (h *PartyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var in services.PartyInput
	if !decode(w, r, &in) {
		return
	}
	ref, err := h.parties.Resolve(r.Context(), in)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	status := http.StatusOK
	if ref.ClientCreated || ref.VehicleCreated {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, ref)
}
