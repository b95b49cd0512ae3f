// Package telegram implements the fallback delivery channel on the Telegram
// Bot API and the group-name resolver the fallback needs for symbolic receivers.
//
// Both share one telebot instance. The bot is created offline (no getMe at
// startup) so a misconfigured token only surfaces when the fallback is used.
package telegram
