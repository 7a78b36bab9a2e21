// Package vecrag embeds the retrieval pipeline in a Go program: queries are
// routed, retrieved from a Redis FT index, reranked, graded and answered
// in-process, without running the HTTP service.
//
//	client, _ := vecrag.New(ctx,
//	    vecrag.WithRedis("localhost:6379", ""),
//	    vecrag.WithEmbedder(myEmbedder),
//	    vecrag.WithChat(myChat),
//	)
//	defer client.Close()
//
//	ans, err := client.Ask(ctx, vecrag.Query{Text: "how do I rotate keys?", Department: "eng"})
//	fmt.Println(ans.Text, ans.Confidence)
//
//	tr, _ := client.Trace(ans.TraceID)
//	for _, s := range tr.Steps {
//	    fmt.Println(s.Type, s.Label, s.Duration)
//	}
package vecrag
