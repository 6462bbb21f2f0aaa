// Package network models the highway corridor as an undirected weighted graph
// of segments. Edges only join segments that are consecutive in the input
// table and weigh the average of both segment lengths. Shortest-path
// distances are computed with Dijkstra once per source and cached, since the
// optimizer needs the full distance matrix.
//
// Unreachable targets are absent from ShortestPaths results; callers must
// treat a missing key as an infinite distance.
package network
