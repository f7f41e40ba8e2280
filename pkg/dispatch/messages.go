package dispatch

const (
	cmdStart          = "/start"
	cmdStop           = "/stop"
	cmdAddChannel     = "/add_channel"
	cmdAddAllChannels = "/add_all_channels"
	cmdRemoveChannel  = "/remove_channel"
	cmdSetTarget      = "/set_target"
	cmdList           = "/list"
	cmdStatus         = "/status"
	cmdReset          = "/reset"
	cmdHelp           = "/help"
)

const (
	msgBotStarted       = "Bot started. Monitoring channels..."
	msgBotStopped       = "Bot stopped."
	msgChannelAdded     = "Channel %s added to monitoring list."
	msgChannelRemoved   = "Channel %s removed from monitoring list."
	msgAlreadyMonitored = "Channel %s is already monitored."
	msgNotMonitored     = "Channel %s is not in the monitoring list."
	msgTargetSet        = "Target channel set to %s."
	msgTargetMonitored  = "Channel %s is monitored. Remove it with /remove_channel before making it the target."
	msgIsTarget         = "Channel %s is the target channel and cannot be monitored."
	msgInvalidChannel   = "Invalid channel format. Please use one of these formats:\n" +
		"1. Username: @channelname\n" +
		"2. Link: https://t.me/channelname"
	msgChannelNotFound  = "Channel not found. Please check if the channel exists and is accessible."
	msgNoTarget         = "Target channel not set."
	msgAllChannelsAdded = "Added %d channels to monitoring list. Use /list to see them all."
	msgReset            = "Processed message history and pending albums cleared."
	msgStoreFailure     = "Could not save configuration: %v"
)

var msgHelp = "Commands:\n" +
	cmdStart + " - start forwarding\n" +
	cmdStop + " - stop forwarding\n" +
	cmdAddChannel + " <channel> - monitor a channel\n" +
	cmdAddAllChannels + " - monitor every channel the bot has seen\n" +
	cmdRemoveChannel + " <channel> - stop monitoring a channel\n" +
	cmdSetTarget + " <channel> - set the channel posts are forwarded to\n" +
	cmdList + " - show monitored channels and the target\n" +
	cmdStatus + " - show relay status\n" +
	cmdReset + " - forget processed messages\n" +
	cmdHelp + " - show this message"
