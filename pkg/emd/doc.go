// Package emd solves the balanced discrete transportation problem that
// backs the Wasserstein distance between two lagged curves: given a
// nonnegative cost matrix and uniform marginals over its rows and columns,
// it returns the exact optimal transport cost.
//
// The contract is deliberately minimal. Callers supply a flat row-major
// cost matrix; the solver reports only the optimal objective value, never
// the transport plan. The solve is exact (successive shortest augmenting
// paths with potentials), not an entropic approximation, so the result is
// deterministic and free of the instabilities a Sinkhorn iteration can
// produce on small matrices.
package emd
