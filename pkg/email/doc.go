// Package email sends notification emails through Postmark, SendGrid or, in
// development, the local filesystem.
//
// Pick a provider with Config.Provider and wrap the sender as the email
// channel transport:
//
//	sender, err := email.New(cfg)
//	if err != nil {
//	    return err
//	}
//	engine := notifications.NewEngine(store,
//	    notifications.WithTransport(notifications.ChannelEmail,
//	        email.NewTransport(sender, email.WithLinkBaseURL(cfg.LinkBaseURL))),
//	)
//
// Transport renders the payload with the templates subpackage and sends both
// an HTML and a plain text part. Action refs that are web URLs, or paths when
// a link base is set, become buttons.
//
// Errors wrapping ErrInvalidParams or ErrRejected will not succeed on retry
// and reach the dispatcher as notifications.ErrPermanentFailure. Errors
// wrapping ErrFailedToSendEmail are treated as transient.
package email
