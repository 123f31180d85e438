// Package syncer is the boundary between the controller and live-sync
// transports. The controller requests patches for Running actors whose
// source changed; a transport ships them and reports completion. The
// controller only ever polls the tracker's state, so transports can be
// swapped without touching the reconcile loop.
package syncer
