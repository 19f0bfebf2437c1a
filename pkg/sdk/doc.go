// Package pricehub provides a Go client for the pricehub multi-vendor
// product search API.
//
//	client := pricehub.New("http://localhost:8080")
//	res, _ := client.StartSearch(ctx, "taladro", 20)
//	_ = client.StreamEvents(ctx, res.SearchID, func(e pricehub.Event) error {
//	    if e.Kind == pricehub.EventProductFound {
//	        fmt.Println(e.Item.Name, e.Item.Price)
//	    }
//	    return nil
//	})
//	snap, _ := client.GetSearch(ctx, res.SearchID)
package pricehub
