// Package lwan implements a multi-label text classifier with label-wise
// attention pooling, together with the training lifecycle around it.
//
// The network maps padded token-id sequences to one independent sigmoid
// score per label: an embedding lookup (optionally pretrained, padding row
// pinned at id 0), dropout, a same-padded 1-D convolution with tanh, then a
// separate attention distribution over sequence positions for every label
// and a per-label linear classifier over the pooled vectors. Forward and
// backward passes are hand-written; there is no autograd.
//
// Model drives training: epoch loop, per-epoch validation, patience-based
// early stopping where a tie with the best metric counts as improvement,
// and last/best checkpoints written atomically after every epoch. Context
// cancellation is a graceful-stop request honored between batches, so the
// last completed epoch's checkpoint always stays intact. Load resumes a run
// exactly; LoadBest swaps only the weights.
package lwan
