package domain

// Summarize computes aggregate price statistics over the given items.
// All items contribute to Count; only priced items contribute to
// min/max/mean. When no item is priced, the price fields stay nil.
// Recomputed from scratch on every call.
func Summarize(items []Item) Summary {
	s := Summary{Count: len(items)}

	var sum float64
	var priced int
	for _, it := range items {
		if it.Price == nil {
			continue
		}
		p := *it.Price
		if priced == 0 {
			minP, maxP := p, p
			s.MinPrice = &minP
			s.MaxPrice = &maxP
		} else {
			if p < *s.MinPrice {
				*s.MinPrice = p
			}
			if p > *s.MaxPrice {
				*s.MaxPrice = p
			}
		}
		sum += p
		priced++
	}

	if priced > 0 {
		mean := sum / float64(priced)
		s.MeanPrice = &mean
	}
	return s
}
