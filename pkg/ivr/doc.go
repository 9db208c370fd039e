// Package ivr управляет сигналами распознавания речи (ASR) на IVR endpoint'ах
// медиа-шлюза по протоколу MGCP, пакет advanced audio (AU).
//
// # Основные компоненты
//
//   - Controller создает медиа-сессии и IVR endpoint'ы поверх одного транспорта
//   - Endpoint конечный автомат жизненного цикла сигнала с собственным mailbox
//   - AsrSignal неизменяемое описание сигнала AU/asr
//   - ObserverRegistry доставка ответов наблюдателям в порядке поступления
//   - DecodeNotification/DecodeAcknowledgment разбор ответов шлюза в Outcome
//
// # Жизненный цикл сигнала
//
//	idle -> request_sent -> active -> idle
//	request_sent|active -> cancel_sent -> idle
//	request_sent|active|cancel_sent -> failed -> idle
//
// Каждая команда получает новый ID транзакции. Уведомления, ID которых не
// совпадает с ожидаемым, отбрасываются и наблюдателям не доставляются.
// Промежуточный результат (rc=101) приходит наблюдателям как успешный
// ответ с текстом, завершение (rc=100) как успешный ответ с пустым текстом,
// любой другой код как неуспешный ответ с причиной.
//
// # Пример использования
//
//	tr, _ := transport.NewUDPTransport(transport.UDPConfig{
//		LocalAddr:   "0.0.0.0:2727",
//		GatewayAddr: "127.0.0.1:2427",
//	})
//	ctrl, _ := ivr.NewController(tr, ivr.ControllerConfig{
//		EndpointName: "mobicents/ivr/$@127.0.0.1:2427",
//	})
//	session, _ := ctrl.CreateMediaSession()
//	ep, _ := ctrl.CreateIvrEndpoint(session)
//
//	responses := make(chan ivr.Response, 16)
//	ep.Subscribe(ivr.ChannelListener(responses))
//
//	sig, _ := ivr.NewAsrSignal(ivr.AsrSignalConfig{
//		Driver:   "no_name_driver",
//		Language: "en-US",
//		Prompts:  []string{"hello.wav"},
//	})
//	_ = ep.Start(ctx, sig)
//
//	for r := range responses {
//		if !r.Succeeded || r.IsCompletion() {
//			break
//		}
//		fmt.Println(r.Result.Text)
//	}
//
// # Потокобезопасность
//
// Все методы Endpoint и Controller можно вызывать из разных горутин.
// Наблюдатели вызываются из отдельной горутины доставки endpoint'а в порядке
// ответов; из наблюдателя можно вызывать Start, Stop и Close.
package ivr
