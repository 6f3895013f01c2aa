// Copyright 2013 - 2015 Sebastian Ruml <sebastian.ruml@gmail.com>
// Copyright 2021 - 2022 Mendel Greenberg <mendel@chabad360.me>

//Package osc provides the OpenSoundControl codec and UDP transport used by the
//bridge, both towards control surfaces and towards the SuperCollider engine.
//
//This implementation is based on the Open Sound Control 1.0 Specification (http://opensoundcontrol.org/spec-1_0.html).
//
//Features
//
//- Supports OSC messages with the following TypeTags:
//
//	'i' (int32)
//	'f' (float32)
//	's' (string)
//	'b' ([]byte)
//	't' (Timetag)
//	'h' (int64)
//	'd' (float64)
//	'T' (true)
//	'F' (false)
//	'N' (nil)
//
//- Supports OSC bundles, including Timetags
//
//- OSC Address matching and dispatching.
//
//Packets
//
//OSC packets come in two flavors:
//
//OSC Messages: An OSC message consists of an OSC address pattern and zero or more OSC arguments.
//
//OSC Bundles: An OSC Bundle consists of an OSC Timetag, followed by zero or more OSC bundle elements.
//Each bundle element can be another OSC bundle (note this recursive definition: a bundle may contain bundles) or OSC message.
//
//Usage
//
//OSC client example:
//  client, _ := osc.Dial("localhost:13331")
//  client.Send(osc.NewMessage("/note_on", "bell", "n1", int32(0), "freq", float32(440)))
//
//OSC server example:
//  d := &osc.Dispatcher{}
//  d.AddMethodFunc("/nrt_record_finished", func(msg *osc.Message) {
//      fmt.Println(msg)
//  })
//
//  server := &osc.Server{
//      Addr:    "127.0.0.1:13339",
//      Handler: d,
//  }
//  server.ListenAndServe()
//
//The server hands packets to its Handler one at a time, in arrival order.
package osc
