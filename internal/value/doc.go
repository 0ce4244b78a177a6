// Package value provides the closed value set exchanged between query bodies,
// node identities, and the canonical encoding used for hashing and golden output.
//
// This package imports nothing internal. Every other internal package may
// import it.
//
// Key design constraints:
//   - NO float types anywhere - geometry is expressed in integer layout units
//   - Values are immutable once handed to the query engine
//   - NodeID carries a generation tag so a recycled index never aliases a
//     retired node
package value
