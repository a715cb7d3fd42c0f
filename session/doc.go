// Package session moves authenticated cookie state between engine handles.
//
// Gateway implements core.SessionGateway for any handle that can read and
// write its cookies (CookieHandle). Extract snapshots the cookies of the
// producing engine into a State; InjectSync and InjectAsync write a State
// into the consuming engine. The browser and web engines in engines/ both
// implement CookieHandle, so a login performed in a real browser can be
// reused by the lightweight HTTP engine without signing in again.
//
//	gw := session.NewGateway(func(o *session.Options) {
//	    o.Domains = []string{"shop.example.com"}
//	})
//	exec := engine.New(gw)
package session
