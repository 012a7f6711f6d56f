// Package listener implements the C-STORE SCP that receives image
// instances and RT structure sets, spools them atomically, and feeds the
// watcher one file-arrival event per instance.
package listener

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/caio-sobreiro/netrt/dicom"
	"github.com/caio-sobreiro/netrt/dimse"
	"github.com/caio-sobreiro/netrt/interfaces"
	"github.com/caio-sobreiro/netrt/spool"
	"github.com/caio-sobreiro/netrt/types"
	"github.com/caio-sobreiro/netrt/watcher"
)

// rtStructureSetSOPClass is the SOP Class UID that routes an instance to
// the Structure/ slot instead of DCM/.
const rtStructureSetSOPClass = "1.2.840.10008.5.1.4.1.1.481.3"

var tagStudyInstanceUID = dicom.Tag{Group: 0x0020, Element: 0x000D}

// StoreHandler implements interfaces.ServiceHandler for C-STORE-RQ,
// spooling each received instance under its study and publishing a
// watcher event once the write has landed.
type StoreHandler struct {
	spool   *spool.Spool
	events  chan<- watcher.FileEvent
	logger  *slog.Logger
	maxSize int64 // bytes; 0 means unbounded
}

// NewStoreHandler builds a StoreHandler. maxInstanceBytes of 0 disables the
// per-instance size cap.
func NewStoreHandler(s *spool.Spool, events chan<- watcher.FileEvent, logger *slog.Logger, maxInstanceBytes int64) *StoreHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreHandler{spool: s, events: events, logger: logger, maxSize: maxInstanceBytes}
}

// HandleDIMSE processes one C-STORE-RQ: it parses just enough of the
// dataset to learn the study, series SOP class, and instance UID, then
// spools the whole encoded instance atomically.
func (h *StoreHandler) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	if h.maxSize > 0 && int64(len(data)) > h.maxSize {
		h.logger.Warn("rejecting oversized C-STORE instance",
			"sop_instance_uid", msg.AffectedSOPInstanceUID, "size", len(data), "max", h.maxSize)
		return errorResponse(msg, dimse.StatusFailure), nil, nil
	}

	ds := meta.Dataset
	if ds == nil {
		var err error
		ds, err = dicom.ParseDatasetWithTransferSyntax(data, meta.TransferSyntaxUID)
		if err != nil {
			h.logger.Warn("malformed instance rejected", "error", err)
			return errorResponse(msg, dimse.StatusFailure), nil, nil
		}
	}

	studyUID := ds.GetString(tagStudyInstanceUID)
	key, err := spool.SafeKey(studyUID)
	if err != nil {
		h.logger.Warn("malformed study identifier rejected", "study_instance_uid", studyUID, "error", err)
		return errorResponse(msg, dimse.StatusFailure), nil, nil
	}

	if err := h.spool.Create(key); err != nil {
		h.logger.Error("failed to create spool directories", "study", string(key), "error", err)
		return errorResponse(msg, dimse.StatusFailure), nil, nil
	}

	slot := spool.SlotDCM
	if msg.AffectedSOPClassUID == rtStructureSetSOPClass {
		slot = spool.SlotStructure
	}

	filename := fmt.Sprintf("%s.dcm", safeFilePart(msg.AffectedSOPInstanceUID))
	path, err := h.spool.WriteInstance(key, slot, filename, data)
	if err != nil {
		h.logger.Error("failed to spool instance", "study", string(key), "error", err)
		return errorResponse(msg, dimse.StatusFailure), nil, nil
	}

	select {
	case h.events <- watcher.FileEvent{Study: key, Path: path}:
	case <-ctx.Done():
		return errorResponse(msg, dimse.StatusFailure), nil, ctx.Err()
	}

	return &types.Message{
		CommandField:              dimse.CStoreRSP,
		MessageIDBeingRespondedTo: msg.MessageID,
		AffectedSOPClassUID:       msg.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    msg.AffectedSOPInstanceUID,
		CommandDataSetType:        0x0101,
		Status:                    dimse.StatusSuccess,
	}, nil, nil
}

func errorResponse(req *types.Message, status uint16) *types.Message {
	return &types.Message{
		CommandField:              dimse.CStoreRSP,
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    req.AffectedSOPInstanceUID,
		CommandDataSetType:        0x0101,
		Status:                    status,
	}
}

// safeFilePart strips anything that isn't a plausible UID character, so a
// pathologically crafted SOP Instance UID cannot escape the slot directory.
func safeFilePart(uid string) string {
	out := make([]byte, 0, len(uid))
	for i := 0; i < len(uid); i++ {
		c := uid[i]
		if (c >= '0' && c <= '9') || c == '.' {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}
