// Package edm implements the compute kernel for Empirical Dynamic Modeling:
// time-delay embedding of (possibly irregular, possibly panel) time series
// into a state-space manifold, exact nearest-neighbor search under L^p or
// Wasserstein distances, and prediction of a target variable by Simplex
// projection or S-map local linear regression.
//
// The pipeline is deliberately small:
//
//	gen := edm.NewManifoldGenerator(t, x, y, extras, numExtrasLagged, tau)
//	pred, err := edm.Run(ctx, opts, gen, trainFilter, predictFilter, sink, probe)
//
// A ManifoldGenerator owns the raw columns and embedding parameters and is
// pure metadata until Create materializes a Manifold for a row filter. The
// driver then runs one independent prediction per query row in parallel,
// honoring a cancellation probe, and reduces per-row return codes to a
// worst-case outcome plus optional rho/MAE statistics.
//
// All shared inputs (manifolds, options, targets) are immutable during a run;
// output buffers are partitioned by query index, so workers need no locks.
package edm
