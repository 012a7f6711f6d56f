// Package orchestrator wires the Spool, contour engine, series synthesiser
// and Sender together, owns the per-study lifecycle state machine, and is
// the sole mutator of the in-memory study-state map.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/caio-sobreiro/netrt/config"
	"github.com/caio-sobreiro/netrt/contour"
	"github.com/caio-sobreiro/netrt/dicom"
	"github.com/caio-sobreiro/netrt/dicomtag"
	"github.com/caio-sobreiro/netrt/logging"
	"github.com/caio-sobreiro/netrt/netrterr"
	"github.com/caio-sobreiro/netrt/roi"
	"github.com/caio-sobreiro/netrt/sender"
	"github.com/caio-sobreiro/netrt/spool"
	"github.com/caio-sobreiro/netrt/synth"
)

// completionNotifier is the Watcher's half of the dispatch/dispatch_complete
// contract; kept as an interface here so the orchestrator does not import
// the watcher package back (it is the watcher that depends on dispatching
// into the orchestrator).
type completionNotifier interface {
	DispatchComplete(key spool.StudyKey)
}

// Anonymizer applies the configured tag-table rewrite to one instance's
// dataset in place, before contouring begins.
type Anonymizer interface {
	Anonymize(ds *dicom.Dataset) error
}

// Orchestrator owns the study-state map and the dispatch pipeline.
type Orchestrator struct {
	spool  *spool.Spool
	cfg    config.Config
	logs   logging.Sinks
	notify completionNotifier
	anon   Anonymizer

	mu     sync.RWMutex
	states map[spool.StudyKey]State

	sem *semaphore.Weighted // bounds concurrent pipeline workers
}

// New builds an Orchestrator. workerCount bounds concurrent pipeline runs;
// the single-flight-per-study rule is enforced independently by the
// Watcher, so workerCount only bounds cross-study parallelism.
func New(s *spool.Spool, cfg config.Config, logs logging.Sinks, notify completionNotifier, anon Anonymizer, workerCount int) *Orchestrator {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Orchestrator{
		spool:  s,
		cfg:    cfg,
		logs:   logs,
		notify: notify,
		anon:   anon,
		states: make(map[spool.StudyKey]State),
		sem:    semaphore.NewWeighted(int64(workerCount)),
	}
}

// Dispatch is the Watcher's entry point: it runs the five-step pipeline for
// a study on the bounded worker pool, and always calls DispatchComplete on
// the way out regardless of outcome.
func (o *Orchestrator) Dispatch(key spool.StudyKey) {
	if err := o.sem.Acquire(context.Background(), 1); err != nil {
		o.notify.DispatchComplete(key)
		return
	}
	go func() {
		defer o.sem.Release(1)
		defer o.notify.DispatchComplete(key)
		o.run(key)
	}()
}

func (o *Orchestrator) setState(key spool.StudyKey, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[key] = s
}

// State returns a study's current in-memory lifecycle state.
func (o *Orchestrator) State(key spool.StudyKey) (State, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.states[key]
	return s, ok
}

func (o *Orchestrator) run(key spool.StudyKey) {
	o.setState(key, StateProcessing)

	dcmFiles, structFile, err := o.validate(key)
	if err != nil {
		o.fail(key, netrterr.KindIncompleteStudy, err)
		return
	}

	if err := o.anonymizeInPlace(key, dcmFiles, structFile); err != nil {
		o.fail(key, netrterr.KindCodecError, err)
		return
	}

	additions, debug, err := o.process(key, dcmFiles, structFile)
	if err != nil {
		o.fail(key, classifyProcessError(err), err)
		return
	}

	o.setState(key, StateSending)
	if err := o.send(additions, debug); err != nil {
		o.fail(key, classifySendError(err), err)
		return
	}

	if err := o.spool.Cleanup(key); err != nil {
		o.fail(key, netrterr.KindIOError, err)
		return
	}
	o.setState(key, StateDeleted)
	o.logs.Log(logging.TransactionRecord{Study: string(key), Peer: o.peerLabel(), Outcome: "PROCESSING_SUCCESS"})
	o.logs.Log(logging.TransactionRecord{Study: string(key), Peer: o.peerLabel(), Outcome: "SENDING_SUCCESS"})
}

// validate checks spool contents per step 1: non-empty DCM/, at least one
// Structure/ file; on ambiguity (more than one structure set) it selects
// the lexicographically first and logs the ambiguity.
func (o *Orchestrator) validate(key spool.StudyKey) ([]string, string, error) {
	dcmFiles, err := o.spool.ListInstances(key, spool.SlotDCM)
	if err != nil {
		return nil, "", err
	}
	if len(dcmFiles) == 0 {
		return nil, "", fmt.Errorf("study %s has no image instances", key)
	}

	structFiles, err := o.spool.ListInstances(key, spool.SlotStructure)
	if err != nil {
		return nil, "", err
	}
	if len(structFiles) == 0 {
		return nil, "", fmt.Errorf("study %s has no structure set", key)
	}
	if len(structFiles) > 1 {
		o.logs.Application.Warn("multiple structure sets present, using lexicographically first",
			"study", string(key), "chosen", structFiles[0], "count", len(structFiles))
	}

	return dcmFiles, structFiles[0], nil
}

func (o *Orchestrator) anonymizeInPlace(key spool.StudyKey, dcmFiles []string, structFile string) error {
	if o.anon == nil || !o.cfg.Anonymization.Enabled {
		return nil
	}
	for _, name := range dcmFiles {
		if err := o.anonymizeFile(key, spool.SlotDCM, name); err != nil {
			return err
		}
	}
	return o.anonymizeFile(key, spool.SlotStructure, structFile)
}

func (o *Orchestrator) anonymizeFile(key spool.StudyKey, slot spool.Slot, name string) error {
	raw, err := o.spool.ReadInstance(key, slot, name)
	if err != nil {
		return err
	}
	ds, err := dicom.ParseDatasetWithTransferSyntax(raw, "")
	if err != nil {
		return err
	}
	if err := o.anon.Anonymize(ds); err != nil {
		return err
	}
	encoded, err := dicom.EncodeDatasetWithTransferSyntax(ds, "")
	if err != nil {
		return err
	}
	_, err = o.spool.WriteInstance(key, slot, name, encoded)
	return err
}

// process runs the contour engine, series synthesiser, and optional debug
// capture (step 3).
func (o *Orchestrator) process(key spool.StudyKey, dcmFiles []string, structFile string) (additions, debug []*dicom.Dataset, err error) {
	instances, err := o.loadInstances(key, dcmFiles)
	if err != nil {
		return nil, nil, err
	}
	ordered := contour.OrderSlices(instances)

	structRaw, err := o.spool.ReadInstance(key, spool.SlotStructure, structFile)
	if err != nil {
		return nil, nil, err
	}
	structDS, err := dicom.ParseDatasetWithTransferSyntax(structRaw, "")
	if err != nil {
		return nil, nil, err
	}
	allROIs, err := roi.ParseStructureSet(structDS)
	if err != nil {
		return nil, nil, err
	}

	kept, dropped := contour.FilterROIs(allROIs, o.cfg.Processing.IgnoreContourNamesContaining)
	if len(dropped) > 0 {
		o.logs.Application.Debug("dropped ROIs by ignore list", "study", string(key), "dropped", dropped)
	}

	var seriesFOR string
	if len(ordered) > 0 {
		seriesFOR = ordered[0].FrameOfReferenceUID
	}
	kept, forDropped := contour.FilterByFrameOfReference(kept, seriesFOR)
	if len(forDropped) > 0 {
		o.logs.Application.Warn("dropped ROIs with mismatched frame of reference",
			"study", string(key), "series_for", seriesFOR, "dropped", forDropped)
	}
	if len(kept) == 0 && len(forDropped) > 0 {
		return nil, nil, &contour.ErrFrameOfReferenceMismatch{Dropped: forDropped}
	}

	if len(kept) > 1 {
		o.logs.Application.Warn("multiple non-ignored ROIs", "study", string(key), "count", len(kept))
	}

	zTolerance := halfSliceSpacing(ordered)
	volume, err := contour.BuildVolume(ordered, kept, zTolerance, o.logs.Application)
	if err != nil {
		return nil, nil, err
	}

	opts := synth.Options{
		SeriesNumber:      o.cfg.Processing.OverlaySeriesNumber,
		SeriesDescription: o.cfg.Processing.OverlaySeriesDescription,
		AddBurnIn:         o.cfg.Processing.AddBurnInDisclaimer,
		BurnInText:        o.cfg.Processing.BurnInText,
	}

	additions, err = synth.BuildAdditionSeries(ordered, volume, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := o.writeSeries(key, spool.SlotAddition, additions); err != nil {
		return nil, nil, err
	}

	if o.cfg.FeatureFlags.EnableDebugVisualisation {
		debug, err = synth.BuildDebugSeries(ordered, volume, opts)
		if err != nil {
			return nil, nil, err
		}
		if err := o.writeSeries(key, spool.SlotDebugDicom, debug); err != nil {
			return nil, nil, err
		}
	}

	return additions, debug, nil
}

func (o *Orchestrator) loadInstances(key spool.StudyKey, names []string) ([]dicomtag.Instance, error) {
	out := make([]dicomtag.Instance, 0, len(names))
	for _, name := range names {
		raw, err := o.spool.ReadInstance(key, spool.SlotDCM, name)
		if err != nil {
			return nil, err
		}
		ds, err := dicom.ParseDatasetWithTransferSyntax(raw, "")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		inst, err := dicomtag.FromDataset(ds)
		if err != nil {
			return nil, fmt.Errorf("instance %s: %w", name, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// writeSeries writes every synthesised dataset via write-to-temp-then-
// rename; nothing in the slot is considered complete until every planned
// instance has landed, so the Sender never observes a partial series.
func (o *Orchestrator) writeSeries(key spool.StudyKey, slot spool.Slot, datasets []*dicom.Dataset) error {
	for i, ds := range datasets {
		encoded, err := dicom.EncodeDatasetWithTransferSyntax(ds, "")
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%04d.dcm", i)
		if _, err := o.spool.WriteInstance(key, slot, name, encoded); err != nil {
			return err
		}
	}
	return nil
}

// send transmits the Addition/ (and DebugDicom/, if populated) series as
// one all-or-nothing batch (step 4).
func (o *Orchestrator) send(additions, debug []*dicom.Dataset) error {
	var batch []sender.Instance
	for _, ds := range append(append([]*dicom.Dataset{}, additions...), debug...) {
		encoded, err := dicom.EncodeDatasetWithTransferSyntax(ds, "")
		if err != nil {
			return err
		}
		batch = append(batch, sender.Instance{
			SOPClassUID:    ds.GetString(dicom.Tag{Group: 0x0008, Element: 0x0016}),
			SOPInstanceUID: ds.GetString(dicom.Tag{Group: 0x0008, Element: 0x0018}),
			Data:           encoded,
		})
	}

	dest := sender.Destination{
		Host:           o.cfg.DICOMDest.IP,
		Port:           o.cfg.DICOMDest.Port,
		CalledAETitle:  o.cfg.DICOMDest.AETitle,
		CallingAETitle: o.cfg.DICOMListener.AETitle,
	}

	return sender.SendBatch(dest, batch, sender.Options{Logger: o.logs.Application})
}

func (o *Orchestrator) fail(key spool.StudyKey, kind netrterr.Kind, cause error) {
	pipelineErr := netrterr.New(kind, string(key), cause)

	if kind == netrterr.KindIOError {
		// One retry on spool I/O error before escalating, per policy.
		if err := o.spool.Cleanup(key); err == nil {
			o.setState(key, StateDeleted)
			return
		}
	}

	if err := o.spool.Quarantine(key, pipelineErr.Error(), time.Now()); err != nil {
		o.logs.Application.Error("quarantine itself failed", "study", string(key), "error", err)
	}
	o.setState(key, StateQuarantined)
	o.logs.Log(logging.TransactionRecord{
		Study: string(key), Peer: o.peerLabel(), Outcome: "QUARANTINED", ErrorKind: string(kind),
	})
	o.logs.Application.Error("study quarantined", "study", string(key), "kind", string(kind), "error", cause)
}

func (o *Orchestrator) peerLabel() string {
	return fmt.Sprintf("%s@%s:%d", o.cfg.DICOMDest.AETitle, o.cfg.DICOMDest.IP, o.cfg.DICOMDest.Port)
}

func classifyProcessError(err error) netrterr.Kind {
	switch err.(type) {
	case *contour.ErrCoordinateMismatch, *contour.ErrFrameOfReferenceMismatch:
		return netrterr.KindCoordinateMismatch
	}
	if err == contour.ErrNoROI {
		return netrterr.KindROIEmpty
	}
	return netrterr.KindCodecError
}

func classifySendError(err error) netrterr.Kind {
	return netrterr.KindSendFatal
}

// halfSliceSpacing estimates the slice matching tolerance from the ordered
// series: half the mean spacing between consecutive slice projections.
func halfSliceSpacing(ordered []dicomtag.Instance) float64 {
	if len(ordered) < 2 {
		return 1.0
	}
	var spacings []float64
	for i := 1; i < len(ordered); i++ {
		spacings = append(spacings, ordered[i].SliceProjection()-ordered[i-1].SliceProjection())
	}
	sum := 0.0
	for _, s := range spacings {
		sum += s
	}
	return (sum / float64(len(spacings))) / 2
}
