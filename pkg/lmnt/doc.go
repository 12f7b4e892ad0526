// Package lmnt provides a Go client for the LMNT text-to-speech API.
//
// # Basic Usage
//
//	client := lmnt.NewClient("your-api-key")
//
//	// One-shot synthesis
//	audio, err := client.Speech.Generate(ctx, &lmnt.GenerateRequest{
//	    Text:   "Hello, world!",
//	    Voice:  "leah",
//	    Format: lmnt.FormatMP3,
//	})
//
//	// Voices
//	voices, err := client.Voices.List(ctx, &lmnt.ListVoicesOptions{Owner: lmnt.OwnerSystem})
//
// # Streaming Sessions
//
// A Session is a full-duplex connection: text goes in with AppendText,
// audio comes out as events while more text is still being written.
//
//	sess, err := client.Sessions.Connect(ctx, &lmnt.SessionConfig{
//	    Voice:  "leah",
//	    Extras: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	go func() {
//	    for _, sentence := range sentences {
//	        sess.AppendText(sentence)
//	    }
//	    sess.Finish()
//	}()
//
//	for resp, err := range sess.Responses(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    out.Write(resp.Audio)
//	}
//
// Flush and Reset return a nonce. Under the default versioned protocol the
// server acknowledges each one with an EventAck carrying the same nonce.
// ProtocolLegacy speaks the older command shape, which has no reset and no
// acknowledgements.
//
// # Error Handling
//
// Every error returned by this package is an *Error. Kind tells
// configuration, protocol, service and connection errors apart:
//
//	if e, ok := lmnt.AsError(err); ok {
//	    switch {
//	    case e.Kind == lmnt.KindService && e.IsRateLimit():
//	        // back off
//	    case errors.Is(err, lmnt.ErrSessionClosed):
//	        // session was closed locally
//	    }
//	}
package lmnt
