// Package application contém os casos de uso da admissão: normalização da
// identidade do cliente, o pipeline de decisão e o limite de concorrência.
//
// Ele depende do pacote domain e não conhece net/http.
// Ex.: Pipeline.Decide(ctx, meta) retorna uma Decision (forward/403/429).
package application
